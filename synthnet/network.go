// Package synthnet assembles the conditional handwriting-synthesis network:
// an attention cell over the text, two more LSTM layers with skip
// connections, and a bivariate Gaussian mixture head trained by masked
// negative log-likelihood on next-point prediction.
package synthnet

import (
	"bytes"
	"encoding/gob"
	"log"

	"github.com/pkg/errors"
	"github.com/scrawlnet/scrawl/data"
	"github.com/scrawlnet/scrawl/rnn"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

func init() {
	gob.Register(&tensor.Dense{})
}

// Net is the whole network plus its tape machine. One Net serves one fixed
// batch shape; build a FwdOnly clone (Evaluator) for validation.
type Net struct {
	Config

	g          *G.ExprGraph
	cell       *rnn.AttnCell
	rnn2, rnn3 *rnn.MemCell
	wo, bo     *G.Node // mixture head

	strokes, chars, charMask, strokeMask *G.Node

	loss    *G.Node
	lossVal G.Value

	m      G.VM
	logBuf bytes.Buffer
}

// New returns an uninitialized *Net.
func New(conf Config) *Net {
	return &Net{Config: conf}
}

// Init builds the graph (forward pass, loss, and unless FwdOnly the
// gradient) and compiles the net's tape machine.
func (n *Net) Init() error {
	n.reset()
	if !n.Config.IsValid() {
		return errors.Errorf("invalid config %+v", n.Config)
	}
	n.g = G.NewGraph()
	if err := n.fwd(); err != nil {
		return err
	}
	if err := n.bwd(); err != nil {
		return err
	}

	var opts []G.VMOpt
	if !n.FwdOnly {
		opts = append(opts, G.BindDualValues(n.Learnables()...))
	}
	if n.Debug {
		logger := log.New(&n.logBuf, "", 0)
		opts = append(opts,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		)
	}
	n.m = G.NewTapeMachine(n.g, opts...)
	return nil
}

func (n *Net) fwd() error {
	conf := n.Config
	T := conf.StrokeLen
	H := conf.RNN.HiddenDim

	n.strokes = G.NewTensor(n.g, Float, 3, G.WithShape(conf.BatchSize, T, conf.RNN.InputDim), G.WithName("strokes"))
	n.chars = G.NewTensor(n.g, Float, 3, G.WithShape(conf.BatchSize, conf.CharLen, conf.RNN.NumChars), G.WithName("chars"))
	n.charMask = G.NewMatrix(n.g, Float, G.WithShape(conf.BatchSize, conf.CharLen), G.WithName("charMask"))
	n.strokeMask = G.NewMatrix(n.g, Float, G.WithShape(conf.BatchSize, T), G.WithName("strokeMask"))

	n.cell = rnn.NewAttnCell(n.g, conf.RNN)
	skipDim := conf.RNN.InputDim + H + conf.RNN.NumChars
	n.rnn2 = rnn.NewMemCell(n.g, "rnn2", skipDim, H)
	n.rnn3 = rnn.NewMemCell(n.g, "rnn3", skipDim, H)
	n.wo, n.bo = rnn.Linear(n.g, "output", 3*H, 1+6*conf.MixtureComponents)

	var m rnn.Builder

	// layer 1: attention over the text, driven by strokes[:, :T-1]
	strokesIn := m.Slice(n.strokes, nil, G.S(0, T-1))
	if err := m.Err(); err != nil {
		return err
	}
	hiddens, windows, err := n.cell.Unroll(strokesIn, n.chars, n.charMask)
	if err != nil {
		return err
	}

	zeros := func(name string) *G.Node {
		t := tensor.New(tensor.Of(Float), tensor.WithShape(conf.BatchSize, H))
		return G.NewConstant(t, G.WithName(name))
	}
	h2, c2 := zeros("h2_0"), zeros("c2_0")
	h3, c3 := zeros("h3_0"), zeros("c3_0")

	cs := newConsts(conf.BatchSize)
	var loss *G.Node
	for t := 0; t < T-1; t++ {
		xt := m.Slice(n.strokes, nil, G.S(t))

		// layers 2 and 3 see the stroke and the window again (skip connections)
		h2, c2 = n.rnn2.Step(&m, m.Concat(1, xt, hiddens[t], windows[t]), h2, c2)
		h3, c3 = n.rnn3.Step(&m, m.Concat(1, xt, h2, windows[t]), h3, c3)

		hat := m.Affine(m.Concat(1, hiddens[t], h2, h3), n.wo, n.bo)
		mix := splitMixture(&m, hat, conf.MixtureComponents)

		target := m.Slice(n.strokes, nil, G.S(t+1))
		maskT := m.Slice(n.strokeMask, nil, G.S(t+1))
		nll := stepNLL(&m, mix, target, maskT, cs)
		if loss == nil {
			loss = nll
		} else {
			loss = m.Add(loss, nll)
		}
	}
	loss = m.Mul(cs.invBatch, loss)
	if err := m.Err(); err != nil {
		return err
	}

	n.loss = loss
	G.Read(n.loss, &n.lossVal)
	return nil
}

func (n *Net) bwd() error {
	if n.FwdOnly {
		return nil
	}
	if _, err := G.Grad(n.loss, n.Learnables()...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Learnables harvests every variable of the graph except the four data
// inputs. The order is the construction order, which Sync and the gob
// round-trip both rely on.
func (n *Net) Learnables() G.Nodes {
	retVal := make(G.Nodes, 0, 44)
	for _, nd := range n.g.AllNodes() {
		if nd.IsVar() && nd != n.strokes && nd != n.chars && nd != n.charMask && nd != n.strokeMask {
			retVal = append(retVal, nd)
		}
	}
	return retVal
}

// ClipGroups names the parameter groups whose gradients get norm-clipped
// during training: the attention LSTM and the two upper LSTMs. The window
// projection and the mixture head ride unclipped.
func (n *Net) ClipGroups() map[string]G.Nodes {
	return map[string]G.Nodes{
		"attention": n.cell.MemParams(),
		"rnn2":      n.rnn2.Params(),
		"rnn3":      n.rnn3.Params(),
	}
}

// ComputeLoss runs one forward (and, unless FwdOnly, backward) pass over a
// collated batch and returns the batch loss. Gradients are left on the
// learnables for the caller to clip and step.
func (n *Net) ComputeLoss(b *data.Batch) (float64, error) {
	n.logBuf.Reset()
	n.m.Reset()
	if err := G.Let(n.strokes, b.Strokes); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := G.Let(n.chars, b.Chars); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := G.Let(n.charMask, b.CharMask); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := G.Let(n.strokeMask, b.StrokeMask); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := n.m.RunAll(); err != nil {
		return 0, errors.WithStack(err)
	}
	return float64(n.lossVal.Data().(float32)), nil
}

// ExecLog returns the machine's execution log; empty unless Debug is set.
func (n *Net) ExecLog() string { return n.logBuf.String() }

// Close releases the net's tape machine.
func (n *Net) Close() error {
	if n.m == nil {
		return nil
	}
	return n.m.Close()
}

func (n *Net) reset() {
	if n.m != nil {
		n.m.Close()
	}
	n.m = nil
	n.g = nil
	n.cell = nil
	n.rnn2, n.rnn3 = nil, nil
	n.wo, n.bo = nil, nil
	n.strokes, n.chars, n.charMask, n.strokeMask = nil, nil, nil, nil
	n.loss = nil
	n.lossVal = nil
	n.logBuf.Reset()
}

// GobEncode serializes the learnable values in construction order.
func (n *Net) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, nd := range n.Learnables() {
		v := nd.Value()
		if err := enc.Encode(&v); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode restores learnable values into an initialized net (initializing
// it first if need be). Values are copied in place so the compiled machine
// keeps its bindings.
func (n *Net) GobDecode(p []byte) error {
	if n.g == nil {
		if err := n.Init(); err != nil {
			return err
		}
	}
	dec := gob.NewDecoder(bytes.NewBuffer(p))
	for _, nd := range n.Learnables() {
		var v G.Value
		if err := dec.Decode(&v); err != nil {
			return errors.WithStack(err)
		}
		dst := nd.Value().Data().([]float32)
		src := v.Data().([]float32)
		if len(dst) != len(src) {
			return errors.Errorf("checkpoint mismatch on %v: %d values for %d weights", nd.Name(), len(src), len(dst))
		}
		copy(dst, src)
	}
	return nil
}
