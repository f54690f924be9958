package scrawl

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/scrawlnet/scrawl/data"
	"github.com/scrawlnet/scrawl/synthnet"
	"github.com/scrawlnet/scrawl/trainer"
)

// Config is the file-loadable top level configuration. Batch is the single
// source of truth for geometry: New builds the network to match it and to
// match the alphabet, so net.batch_size, net.stroke_len, net.char_len and
// net.rnn.num_chars in a config file are overwritten.
type Config struct {
	Kind        ModelKind `json:"kind"`
	Charset     string    `json:"charset,omitempty"` // empty means the default alphabet
	ValFraction float64   `json:"val_fraction"`

	Net     synthnet.Config `json:"net"`
	Batch   data.BatchConf  `json:"batch"`
	Trainer trainer.Config  `json:"trainer"`
}

// DefaultConf wires the package defaults together over the default alphabet.
func DefaultConf() Config {
	a := data.Default()
	return Config{
		Kind:        Conditional,
		ValFraction: 0.1,
		Net:         synthnet.DefaultConf(a.Size()),
		Batch:       data.DefaultBatchConf(),
		Trainer:     trainer.DefaultConf(),
	}
}

// LoadConfig reads a JSON config. Sections the file leaves out keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConf()
	p, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.WithStack(err)
	}
	if err := json.Unmarshal(p, &conf); err != nil {
		return conf, errors.Wrapf(err, "config %s", path)
	}
	return conf, nil
}
