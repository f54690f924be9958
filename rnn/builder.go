package rnn

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the dtype used for every node and tensor in this module.
var Float = G.Float32

// Builder threads graph construction through a sticky error: the first op to
// fail wins and everything after it is a no-op. The caller checks Err once.
type Builder struct {
	err error
}

// Err returns the first error encountered while building, with stack.
func (m *Builder) Err() error { return m.err }

// Do lifts a node-producing function into the builder.
func (m *Builder) Do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return retVal
}

func (m *Builder) Add(a, b *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Add(a, b) })
}

func (m *Builder) Sub(a, b *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Sub(a, b) })
}

func (m *Builder) Mul(a, b *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Mul(a, b) })
}

func (m *Builder) Hadamard(a, b *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.HadamardProd(a, b) })
}

func (m *Builder) HadamardDiv(a, b *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.HadamardDiv(a, b) })
}

func (m *Builder) Neg(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Neg(a) })
}

func (m *Builder) Exp(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Exp(a) })
}

func (m *Builder) Log(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Log(a) })
}

func (m *Builder) Sqrt(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Sqrt(a) })
}

func (m *Builder) Square(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Square(a) })
}

func (m *Builder) Tanh(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Tanh(a) })
}

func (m *Builder) Sigmoid(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Sigmoid(a) })
}

func (m *Builder) SoftMax(a *G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.SoftMax(a) })
}

func (m *Builder) Concat(axis int, ns ...*G.Node) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Concat(axis, ns...) })
}

func (m *Builder) Reshape(a *G.Node, to tensor.Shape) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Reshape(a, to) })
}

func (m *Builder) Slice(a *G.Node, slices ...tensor.Slice) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Slice(a, slices...) })
}

func (m *Builder) Sum(a *G.Node, along ...int) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.Sum(a, along...) })
}

func (m *Builder) BroadcastAdd(a, b *G.Node, left, right []byte) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.BroadcastAdd(a, b, left, right) })
}

func (m *Builder) BroadcastSub(a, b *G.Node, left, right []byte) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.BroadcastSub(a, b, left, right) })
}

func (m *Builder) BroadcastHadamard(a, b *G.Node, left, right []byte) *G.Node {
	return m.Do(func() (*G.Node, error) { return G.BroadcastHadamardProd(a, b, left, right) })
}

// Affine applies x·w + b, with b shaped (1, out) and broadcast across rows.
func (m *Builder) Affine(x, w, b *G.Node) *G.Node {
	return m.BroadcastAdd(m.Mul(x, w), b, nil, []byte{0})
}

// Linear creates a fresh weight matrix and bias for an affine map from in to
// out features. Weights are Glorot-initialized, biases start at zero.
func Linear(g *G.ExprGraph, name string, in, out int) (w, b *G.Node) {
	w = G.NewMatrix(g, Float, G.WithShape(in, out), G.WithName(name+"_w"), G.WithInit(G.GlorotN(1.0)))
	b = G.NewMatrix(g, Float, G.WithShape(1, out), G.WithName(name+"_b"), G.WithInit(G.Zeroes()))
	return w, b
}
