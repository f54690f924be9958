package synthnet

import (
	"github.com/pkg/errors"
	"github.com/scrawlnet/scrawl/data"
)

// Evaluator wraps a forward-only clone of a training net: same graph minus
// the gradient half, its own tape machine, weights copied over on Sync. It
// is how validation runs without touching the training machine.
type Evaluator struct {
	net *Net
	fwd *Net
}

func NewEvaluator(n *Net) (*Evaluator, error) {
	conf := n.Config
	conf.FwdOnly = true
	ev := &Evaluator{net: n, fwd: New(conf)}
	if err := ev.fwd.Init(); err != nil {
		return nil, err
	}
	if err := ev.Sync(); err != nil {
		ev.fwd.Close()
		return nil, err
	}
	return ev, nil
}

// Sync copies the training net's current weights into the clone. Both nets
// build their graphs in the same order, so learnables line up by index.
func (ev *Evaluator) Sync() error {
	src := ev.net.Learnables()
	dst := ev.fwd.Learnables()
	if len(src) != len(dst) {
		return errors.Errorf("learnable count mismatch: %d vs %d", len(src), len(dst))
	}
	for i, nd := range src {
		copy(dst[i].Value().Data().([]float32), nd.Value().Data().([]float32))
	}
	return nil
}

// EvalLoss runs a no-gradient pass over a batch.
func (ev *Evaluator) EvalLoss(b *data.Batch) (float64, error) {
	return ev.fwd.ComputeLoss(b)
}

// ExecLog returns the clone's execution log; empty unless Debug is set.
func (ev *Evaluator) ExecLog() string { return ev.fwd.ExecLog() }

// Close releases the clone's machine. The training net stays open.
func (ev *Evaluator) Close() error { return ev.fwd.Close() }
