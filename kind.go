package scrawl

import (
	"strings"

	"github.com/pkg/errors"
)

// ModelKind names the generation head a session trains. The epoch driver is
// head-agnostic (it takes anything satisfying trainer.Trainee), but this
// repo only builds the conditional synthesis network.
type ModelKind int

const (
	// Conditional generates strokes conditioned on a character sequence
	// through the attention window.
	Conditional ModelKind = iota
	// Unconditional free-runs on strokes alone.
	Unconditional
	// Seq2Seq is the encoder-decoder variant.
	Seq2Seq
)

// ErrUnsupportedKind is returned when a session is asked for a model kind it
// cannot build. An unrecognized kind is a configuration error, never a
// silent no-op.
var ErrUnsupportedKind = errors.New("unsupported model kind")

func (k ModelKind) String() string {
	switch k {
	case Conditional:
		return "conditional"
	case Unconditional:
		return "unconditional"
	case Seq2Seq:
		return "seq2seq"
	}
	return "unknown"
}

// ParseKind maps config and flag strings to kinds.
func ParseKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conditional", "synthesis":
		return Conditional, nil
	case "unconditional", "prediction":
		return Unconditional, nil
	case "seq2seq":
		return Seq2Seq, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedKind, "%q", s)
}

// MarshalText lets kinds travel as strings in JSON configs.
func (k ModelKind) MarshalText() ([]byte, error) {
	if k < Conditional || k > Seq2Seq {
		return nil, errors.Wrapf(ErrUnsupportedKind, "%d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ModelKind) UnmarshalText(p []byte) error {
	parsed, err := ParseKind(string(p))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
