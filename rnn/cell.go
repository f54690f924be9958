// Package rnn implements the attention-augmented recurrent cell at the heart
// of handwriting synthesis: an LSTM whose per-step input is extended with a
// Gaussian-window summary of the text being written, and whose window centers
// only ever move forward through that text.
package rnn

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// State is the cell's complete per-step state, threaded explicitly between
// Step calls: LSTM hidden and cell vectors, window parameters, and the window
// vector that is fed back into the next step's input.
type State struct {
	H, C   *G.Node
	Params WindowParams
	Window *G.Node
}

// AttnCell couples an LSTM memory cell to a Gaussian attention window over a
// fixed character sequence. It owns the LSTM weights and the window
// projection; it owns no character data.
type AttnCell struct {
	Config

	g   *G.ExprGraph
	mem *MemCell
	ww  *G.Node // window projection, hidden → 3K
	wb  *G.Node
}

// NewAttnCell creates the cell's learnable nodes on g.
func NewAttnCell(g *G.ExprGraph, conf Config) *AttnCell {
	c := &AttnCell{
		Config: conf,
		g:      g,
		mem:    NewMemCell(g, "attn", conf.InputDim+conf.NumChars, conf.HiddenDim),
	}
	c.ww, c.wb = Linear(g, "window", conf.HiddenDim, 3*conf.WindowMixtures)
	return c
}

// MemParams lists the LSTM learnables only, excluding the window projection.
func (c *AttnCell) MemParams() G.Nodes { return c.mem.Params() }

// Params lists every learnable the cell owns.
func (c *AttnCell) Params() G.Nodes { return append(c.mem.Params(), c.ww, c.wb) }

// Init returns the state at time -1, before any stroke has been consumed:
// hidden, cell, alpha, beta, kappa and window all zero.
func (c *AttnCell) Init(batchSize int) State {
	zeros := func(cols int, name string) *G.Node {
		t := tensor.New(tensor.Of(Float), tensor.WithShape(batchSize, cols))
		return G.NewConstant(t, G.WithName(name))
	}
	return State{
		H: zeros(c.HiddenDim, "h0"),
		C: zeros(c.HiddenDim, "c0"),
		Params: WindowParams{
			Alpha: zeros(c.WindowMixtures, "alpha0"),
			Beta:  zeros(c.WindowMixtures, "beta0"),
			Kappa: zeros(c.WindowMixtures, "kappa0"),
		},
		Window: zeros(c.NumChars, "window0"),
	}
}

// NextParams derives fresh window parameters from a hidden state. Alpha and
// beta are recomputed from scratch every step; kappa accumulates a strictly
// positive increment onto prevKappa, which is what keeps the attention
// centers moving forward through the text.
func (c *AttnCell) NextParams(h, prevKappa *G.Node) (WindowParams, error) {
	var m Builder
	p := c.nextParams(&m, h, prevKappa)
	if err := m.Err(); err != nil {
		return WindowParams{}, err
	}
	return p, nil
}

func (c *AttnCell) nextParams(m *Builder, h, prevKappa *G.Node) WindowParams {
	k := c.WindowMixtures
	hat := m.Affine(h, c.ww, c.wb) // (batch, 3K): alpha, beta, kappa chunks
	return WindowParams{
		Alpha: m.Exp(m.Slice(hat, nil, G.S(0, k))),
		Beta:  m.Exp(m.Slice(hat, nil, G.S(k, 2*k))),
		Kappa: m.Add(prevKappa, m.Exp(m.Slice(hat, nil, G.S(2*k, 3*k)))),
	}
}

// Step consumes one stroke feature vector xt (batch, inputDim) and produces
// the next state. chars and mask are fixed for the whole sequence.
func (c *AttnCell) Step(st State, xt, chars, mask *G.Node) (State, error) {
	var m Builder
	next := c.step(&m, st, xt, chars, mask)
	if err := m.Err(); err != nil {
		return State{}, err
	}
	return next, nil
}

func (c *AttnCell) step(m *Builder, st State, xt, chars, mask *G.Node) State {
	input := m.Concat(1, xt, st.Window)
	h, cc := c.mem.Step(m, input, st.H, st.C)
	p := c.nextParams(m, h, st.Params.Kappa)
	w := windowNode(m, chars, mask, p)
	return State{H: h, C: cc, Params: p, Window: w}
}

// Unroll runs the cell over every time index of strokes (batch, T, inputDim)
// in increasing time order; step t consumes step t-1's window and kappa. It
// returns the hidden and window vectors of all T steps, time-aligned with
// the input. The final window parameters stay internal: every unroll starts
// its attention at kappa zero.
func (c *AttnCell) Unroll(strokes, chars, mask *G.Node) (hiddens, windows G.Nodes, err error) {
	batch, steps := strokes.Shape()[0], strokes.Shape()[1]

	var m Builder
	st := c.Init(batch)
	hiddens = make(G.Nodes, 0, steps)
	windows = make(G.Nodes, 0, steps)
	for t := 0; t < steps; t++ {
		xt := m.Slice(strokes, nil, G.S(t))
		st = c.step(&m, st, xt, chars, mask)
		hiddens = append(hiddens, st.H)
		windows = append(windows, st.Window)
	}
	if err = m.Err(); err != nil {
		return nil, nil, err
	}
	return hiddens, windows, nil
}
