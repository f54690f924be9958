package synthnet

import (
	"github.com/scrawlnet/scrawl/data"
	"github.com/scrawlnet/scrawl/rnn"
)

// Config sizes the conditional synthesis network and fixes the shapes its
// graph is built for. One graph serves exactly one (batch, strokeLen,
// charLen) shape; the data loader collates to the same shape.
type Config struct {
	RNN               rnn.Config `json:"rnn"`
	MixtureComponents int        `json:"mixture_components"`
	BatchSize         int        `json:"batch_size"`
	StrokeLen         int        `json:"stroke_len"`
	CharLen           int        `json:"char_len"`

	FwdOnly bool `json:"-"`
	Debug   bool `json:"-"`
}

// DefaultConf is the sizing used for real corpora: Graves-style 20-component
// mixture over a 400-wide stack.
func DefaultConf(numChars int) Config {
	return Config{
		RNN:               rnn.DefaultConf(numChars),
		MixtureComponents: 20,
		BatchSize:         32,
		StrokeLen:         300,
		CharLen:           50,
	}
}

func (c Config) IsValid() bool {
	return c.RNN.IsValid() &&
		c.RNN.InputDim == data.StrokeDims &&
		c.MixtureComponents >= 1 &&
		c.BatchSize >= 1 &&
		c.StrokeLen >= 2 && // targets are inputs shifted by one step
		c.CharLen >= 1
}
