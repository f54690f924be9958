// Package scrawl assembles the handwriting synthesis stack: alphabet and
// corpus handling from data, the conditional network from synthnet, and the
// epoch driver from trainer, behind one Session.
package scrawl

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/scrawlnet/scrawl/data"
	"github.com/scrawlnet/scrawl/synthnet"
	"github.com/scrawlnet/scrawl/trainer"
)

// Session owns one model and its training run.
type Session struct {
	conf  Config
	alpha *data.Alphabet

	net  *synthnet.Net
	eval *synthnet.Evaluator
	tr   *trainer.Trainer

	log *logrus.Logger
}

// New builds a session over the corpus: the net, an evaluator over a
// held-out split when the split is big enough for a batch, and the trainer
// wiring them together. Only the conditional head exists; any other kind is
// refused outright with ErrUnsupportedKind.
func New(conf Config, corpus data.Dataset, log *logrus.Logger) (*Session, error) {
	if conf.Kind != Conditional {
		return nil, errors.Wrapf(ErrUnsupportedKind, "%v", conf.Kind)
	}
	if log == nil {
		log = logrus.New()
	}

	alpha := data.Default()
	if conf.Charset != "" {
		alpha = data.NewAlphabet(conf.Charset)
	}

	// geometry is derived, not configured twice
	conf.Net.RNN.NumChars = alpha.Size()
	conf.Net.BatchSize = conf.Batch.BatchSize
	conf.Net.StrokeLen = conf.Batch.StrokeLen
	conf.Net.CharLen = conf.Batch.CharLen

	net := synthnet.New(conf.Net)
	if err := net.Init(); err != nil {
		return nil, err
	}

	trainSet, valSet := corpus.Split(conf.ValFraction, conf.Trainer.Seed)
	loader, err := data.NewLoader(trainSet, alpha, conf.Batch)
	if err != nil {
		net.Close()
		return nil, errors.Wrap(err, "train split")
	}

	s := &Session{
		conf:  conf,
		alpha: alpha,
		net:   net,
		tr:    trainer.New(conf.Trainer, net, loader, log),
		log:   log,
	}

	if len(valSet) >= conf.Batch.BatchSize {
		heldout, err := data.NewLoader(valSet, alpha, conf.Batch)
		if err != nil {
			net.Close()
			return nil, errors.Wrap(err, "validation split")
		}
		if s.eval, err = synthnet.NewEvaluator(net); err != nil {
			net.Close()
			return nil, err
		}
		s.tr.WithValidation(s.eval, heldout)
	} else if conf.ValFraction > 0 {
		log.WithFields(logrus.Fields{
			"heldout":    len(valSet),
			"batch_size": conf.Batch.BatchSize,
		}).Warn("held-out split smaller than one batch, skipping validation")
	}
	return s, nil
}

// Learn trains for the given number of epochs.
func (s *Session) Learn(epochs int) error {
	return s.tr.Run(epochs)
}

// Save writes the model weights to a file.
func (s *Session) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	return errors.WithStack(enc.Encode(s.net))
}

// Load restores weights written by Save into the live net, then brings the
// evaluator back in sync.
func (s *Session) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	if err := dec.Decode(s.net); err != nil {
		return errors.WithStack(err)
	}
	if s.eval != nil {
		return s.eval.Sync()
	}
	return nil
}

// Net exposes the live network.
func (s *Session) Net() *synthnet.Net { return s.net }

// Alphabet exposes the session's character set.
func (s *Session) Alphabet() *data.Alphabet { return s.alpha }

// History returns one aggregate metric map per completed epoch.
func (s *Session) History() []map[string]float64 { return s.tr.History }

// RunID identifies this session's runs in the logs.
func (s *Session) RunID() string { return s.tr.RunID() }

// DumpStats writes the epoch history as CSV.
func (s *Session) DumpStats(filename string) error { return s.tr.DumpHistory(filename) }

// ToDot renders the network topology for graphviz.
func (s *Session) ToDot() string { return s.net.ToDot() }

// Close releases both virtual machines.
func (s *Session) Close() error {
	if s.eval != nil {
		if err := s.eval.Close(); err != nil {
			return err
		}
	}
	return s.net.Close()
}
