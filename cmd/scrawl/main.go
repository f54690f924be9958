// Command scrawl trains the conditional handwriting synthesis model on a
// stroke corpus, or on a synthetic one when no corpus is given.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/scrawlnet/scrawl"
	"github.com/scrawlnet/scrawl/data"

	"net/http"
	_ "net/http/pprof"
)

func main() {
	var (
		confPath   = flag.String("config", "", "JSON config file; package defaults apply when empty")
		corpusPath = flag.String("corpus", "", "stroke corpus (JSON); synthetic strokes are used when empty")
		kindFlag   = flag.String("kind", "", "model kind, overrides the config")
		epochs     = flag.Int("epochs", 10, "training epochs")
		modelPath  = flag.String("model", "scrawl.model", "where to save the trained weights")
		resume     = flag.String("resume", "", "weights to load before training")
		statsPath  = flag.String("stats", "", "write per-epoch metrics CSV here")
		dotPath    = flag.String("dot", "", "write the network topology as graphviz dot here")
		synthSize  = flag.Int("synth", 512, "synthetic corpus size when no corpus is given")
		debugAddr  = flag.String("debug", "", "pprof listen address, e.g. localhost:6060")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *debugAddr != "" {
		go func() {
			log.WithField("addr", *debugAddr).Info("pprof listening")
			if err := http.ListenAndServe(*debugAddr, nil); err != nil {
				log.WithError(err).Warn("pprof server stopped")
			}
		}()
	}

	conf := scrawl.DefaultConf()
	if *confPath != "" {
		var err error
		if conf, err = scrawl.LoadConfig(*confPath); err != nil {
			log.Fatalf("%+v", err)
		}
	}
	if *kindFlag != "" {
		kind, err := scrawl.ParseKind(*kindFlag)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		conf.Kind = kind
	}

	corpus, err := loadCorpus(conf, *corpusPath, *synthSize, log)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	sess, err := scrawl.New(conf, corpus, log)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer sess.Close()

	if *resume != "" {
		if err := sess.Load(*resume); err != nil {
			log.Fatalf("%+v", err)
		}
		log.WithField("model", *resume).Info("weights restored")
	}
	if *dotPath != "" {
		if err := os.WriteFile(*dotPath, []byte(sess.ToDot()), 0644); err != nil {
			log.Fatalf("%+v", err)
		}
	}

	if err := sess.Learn(*epochs); err != nil {
		log.Fatalf("%+v", err)
	}
	if err := sess.Save(*modelPath); err != nil {
		log.Fatalf("%+v", err)
	}
	log.WithField("model", *modelPath).Info("saved")

	if *statsPath != "" {
		if err := sess.DumpStats(*statsPath); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

func loadCorpus(conf scrawl.Config, path string, synthSize int, log *logrus.Logger) (data.Dataset, error) {
	if path != "" {
		log.WithField("corpus", path).Info("loading corpus")
		return data.LoadDataset(path)
	}

	alpha := data.Default()
	if conf.Charset != "" {
		alpha = data.NewAlphabet(conf.Charset)
	}
	log.WithField("samples", synthSize).Info("no corpus given, generating a synthetic one")
	return data.Synthetic(synthSize, alpha, conf.Trainer.Seed), nil
}
