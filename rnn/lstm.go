package rnn

import (
	G "gorgonia.org/gorgonia"
)

// MemCell is a single LSTM memory cell: four gates with separate input and
// recurrent weights. It holds no per-sequence state; callers thread the
// (hidden, cell) pair through Step explicitly.
type MemCell struct {
	wix, wih, bi *G.Node // input gate
	wfx, wfh, bf *G.Node // forget gate
	wox, woh, bo *G.Node // output gate
	wcx, wch, bc *G.Node // candidate
}

// NewMemCell creates the cell's learnable nodes on g, scoped by name.
func NewMemCell(g *G.ExprGraph, name string, inputDim, hiddenDim int) *MemCell {
	mk := func(rows, cols int, suffix string) *G.Node {
		return G.NewMatrix(g, Float, G.WithShape(rows, cols), G.WithName(name+"_"+suffix), G.WithInit(G.GlorotN(1.0)))
	}
	bias := func(suffix string) *G.Node {
		return G.NewMatrix(g, Float, G.WithShape(1, hiddenDim), G.WithName(name+"_"+suffix), G.WithInit(G.Zeroes()))
	}
	return &MemCell{
		wix: mk(inputDim, hiddenDim, "wix"), wih: mk(hiddenDim, hiddenDim, "wih"), bi: bias("bi"),
		wfx: mk(inputDim, hiddenDim, "wfx"), wfh: mk(hiddenDim, hiddenDim, "wfh"), bf: bias("bf"),
		wox: mk(inputDim, hiddenDim, "wox"), woh: mk(hiddenDim, hiddenDim, "woh"), bo: bias("bo"),
		wcx: mk(inputDim, hiddenDim, "wcx"), wch: mk(hiddenDim, hiddenDim, "wch"), bc: bias("bc"),
	}
}

// Params lists the cell's learnable nodes, for clipping and persistence.
func (l *MemCell) Params() G.Nodes {
	return G.Nodes{
		l.wix, l.wih, l.bi,
		l.wfx, l.wfh, l.bf,
		l.wox, l.woh, l.bo,
		l.wcx, l.wch, l.bc,
	}
}

func (l *MemCell) preact(m *Builder, x, h, wx, wh, b *G.Node) *G.Node {
	s := m.Add(m.Mul(x, wx), m.Mul(h, wh))
	return m.BroadcastAdd(s, b, nil, []byte{0})
}

// Step advances the cell one time step, returning the new hidden and cell
// vectors, both (batch, hiddenDim).
func (l *MemCell) Step(m *Builder, x, hPrev, cPrev *G.Node) (h, c *G.Node) {
	i := m.Sigmoid(l.preact(m, x, hPrev, l.wix, l.wih, l.bi))
	f := m.Sigmoid(l.preact(m, x, hPrev, l.wfx, l.wfh, l.bf))
	o := m.Sigmoid(l.preact(m, x, hPrev, l.wox, l.woh, l.bo))
	cand := m.Tanh(l.preact(m, x, hPrev, l.wcx, l.wch, l.bc))

	c = m.Add(m.Hadamard(f, cPrev), m.Hadamard(i, cand))
	h = m.Hadamard(o, m.Tanh(c))
	return h, c
}
