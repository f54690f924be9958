package rnn

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func onehot(idx [][]int, numChars int) *tensor.Dense {
	batch, charLen := len(idx), len(idx[0])
	backing := make([]float32, batch*charLen*numChars)
	for b, row := range idx {
		for j, c := range row {
			backing[(b*charLen+j)*numChars+c] = 1
		}
	}
	return tensor.New(tensor.WithShape(batch, charLen, numChars), tensor.WithBacking(backing))
}

func matrix(rows [][]float32) *tensor.Dense {
	r, c := len(rows), len(rows[0])
	backing := make([]float32, 0, r*c)
	for _, row := range rows {
		backing = append(backing, row...)
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(backing))
}

func ones(r, c int) *tensor.Dense {
	backing := make([]float32, r*c)
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(backing))
}

func cloneF32(xs []float32) []float32 { return append([]float32(nil), xs...) }

// evalWindow runs the window computation once on a fresh graph and returns
// the flattened (batch, numChars) result.
func evalWindow(t *testing.T, charIdx [][]int, maskRows [][]float32, alpha, beta, kappa [][]float32, numChars int) []float32 {
	t.Helper()
	g := G.NewGraph()
	batch, charLen, k := len(charIdx), len(charIdx[0]), len(alpha[0])

	chars := G.NewTensor(g, Float, 3, G.WithShape(batch, charLen, numChars), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(batch, charLen), G.WithName("mask"))
	pa := G.NewMatrix(g, Float, G.WithShape(batch, k), G.WithName("alpha"))
	pb := G.NewMatrix(g, Float, G.WithShape(batch, k), G.WithName("beta"))
	pk := G.NewMatrix(g, Float, G.WithShape(batch, k), G.WithName("kappa"))

	w, err := Window(chars, mask, WindowParams{Alpha: pa, Beta: pb, Kappa: pk})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	G.Let(chars, onehot(charIdx, numChars))
	G.Let(mask, matrix(maskRows))
	G.Let(pa, matrix(alpha))
	G.Let(pb, matrix(beta))
	G.Let(pk, matrix(kappa))

	m := G.NewTapeMachine(g)
	defer m.Close()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	return cloneF32(w.Value().Data().([]float32))
}

func TestWindowShape(t *testing.T) {
	g := G.NewGraph()
	chars := G.NewTensor(g, Float, 3, G.WithShape(2, 4, 5), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(2, 4), G.WithName("mask"))
	pa := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("alpha"))
	pb := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("beta"))
	pk := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("kappa"))

	w, err := Window(chars, mask, WindowParams{Alpha: pa, Beta: pb, Kappa: pk})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 5}, w.Shape())
}

// Masked-out tail positions must contribute exactly zero, so the window over
// a masked sequence equals the window over the truncated sequence, even
// with a kappa parked right on the masked position.
func TestWindowMaskedTailEqualsTruncated(t *testing.T) {
	alpha := [][]float32{{1, 0.5, 0.25}, {2, 1, 0.5}}
	beta := [][]float32{{1, 2, 0.5}, {1, 1, 2}}
	kappa := [][]float32{{3, 1, 2}, {3, 1.5, 2.5}}

	masked := evalWindow(t,
		[][]int{{0, 1, 2, 3}, {1, 2, 3, 4}},
		[][]float32{{1, 1, 1, 0}, {1, 1, 1, 0}},
		alpha, beta, kappa, 5)
	truncated := evalWindow(t,
		[][]int{{0, 1, 2}, {1, 2, 3}},
		[][]float32{{1, 1, 1}, {1, 1, 1}},
		alpha, beta, kappa, 5)

	if diff := cmp.Diff(truncated, masked, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("masked window differs from truncated (-want +got):\n%s", diff)
	}
}

// Far from the attention peak the Gaussian bumps underflow to zero. That is
// expected; it must not produce NaNs.
func TestWindowUnderflowIsClean(t *testing.T) {
	w := evalWindow(t,
		[][]int{{0, 1, 2, 3}},
		[][]float32{{1, 1, 1, 1}},
		[][]float32{{1, 1, 1}},
		[][]float32{{1e6, 1e6, 1e6}},
		[][]float32{{-100, -200, -300}},
		5)
	for i, v := range w {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			t.Fatalf("window[%d] = %v, want a finite value", i, v)
		}
		if v != 0 {
			t.Errorf("window[%d] = %v, want exact underflow to 0", i, v)
		}
	}
}
