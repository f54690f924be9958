package rnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func valData(t *testing.T, n *G.Node) []float32 {
	t.Helper()
	if n.Value() == nil {
		t.Fatalf("node %v has no value", n)
	}
	return n.Value().Data().([]float32)
}

// stateProbe captures a state's window parameters as they are computed.
// Intermediate nodes get their registers recycled by the tape machine, so
// anything we want to inspect after RunAll goes through G.Read.
type stateProbe struct {
	alpha, beta, kappa G.Value
}

func probeState(st State) *stateProbe {
	p := new(stateProbe)
	G.Read(st.Params.Alpha, &p.alpha)
	G.Read(st.Params.Beta, &p.beta)
	G.Read(st.Params.Kappa, &p.kappa)
	return p
}

func cyclicChars(batch, charLen, numChars int) [][]int {
	idx := make([][]int, batch)
	for b := range idx {
		idx[b] = make([]int, charLen)
		for j := range idx[b] {
			idx[b][j] = (b + j) % numChars
		}
	}
	return idx
}

func randomDense(shape ...int) *tensor.Dense {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(tensor.Random(Float, n)))
}

func TestInitZeroState(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 4, WindowMixtures: 3, NumChars: 5}
	g := G.NewGraph()
	c := NewAttnCell(g, conf)
	st := c.Init(2)

	assert.Equal(t, tensor.Shape{2, 4}, st.H.Shape())
	assert.Equal(t, tensor.Shape{2, 4}, st.C.Shape())
	assert.Equal(t, tensor.Shape{2, 3}, st.Params.Alpha.Shape())
	assert.Equal(t, tensor.Shape{2, 3}, st.Params.Beta.Shape())
	assert.Equal(t, tensor.Shape{2, 3}, st.Params.Kappa.Shape())
	assert.Equal(t, tensor.Shape{2, 5}, st.Window.Shape())

	for name, n := range map[string]*G.Node{
		"h":      st.H,
		"c":      st.C,
		"alpha":  st.Params.Alpha,
		"beta":   st.Params.Beta,
		"kappa":  st.Params.Kappa,
		"window": st.Window,
	} {
		for i, v := range valData(t, n) {
			if v != 0 {
				t.Errorf("%s[%d] = %v, want 0", name, i, v)
			}
		}
	}
}

func TestNextParams(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 16, WindowMixtures: 4, NumChars: 8}
	batch := 3
	g := G.NewGraph()
	c := NewAttnCell(g, conf)

	h := G.NewMatrix(g, Float, G.WithShape(batch, conf.HiddenDim), G.WithName("h"))
	prev := G.NewMatrix(g, Float, G.WithShape(batch, conf.WindowMixtures), G.WithName("prevKappa"))
	p, err := c.NextParams(h, prev)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{batch, conf.WindowMixtures}, p.Alpha.Shape())
	assert.Equal(t, tensor.Shape{batch, conf.WindowMixtures}, p.Beta.Shape())
	assert.Equal(t, tensor.Shape{batch, conf.WindowMixtures}, p.Kappa.Shape())

	prevBacking := []float32{-2, -1, 0, 1, 0.5, 3, -0.25, 2, 10, -5, 0, 7}
	G.Let(h, randomDense(batch, conf.HiddenDim))
	G.Let(prev, tensor.New(tensor.WithShape(batch, conf.WindowMixtures), tensor.WithBacking(prevBacking)))

	m := G.NewTapeMachine(g)
	defer m.Close()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}

	alpha := valData(t, p.Alpha)
	beta := valData(t, p.Beta)
	kappa := valData(t, p.Kappa)
	for i := range alpha {
		if alpha[i] <= 0 {
			t.Errorf("alpha[%d] = %v, want > 0", i, alpha[i])
		}
		if beta[i] <= 0 {
			t.Errorf("beta[%d] = %v, want > 0", i, beta[i])
		}
		if kappa[i] <= prevBacking[i] {
			t.Errorf("kappa[%d] = %v, want > previous %v", i, kappa[i], prevBacking[i])
		}
	}
}

// Chain a handful of steps and watch the window parameters: alpha and beta
// stay positive and kappa only ever moves forward.
func TestStepChainAdvancesKappa(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 16, WindowMixtures: 4, NumChars: 8}
	batch, steps, charLen := 2, 5, 6

	g := G.NewGraph()
	c := NewAttnCell(g, conf)
	strokes := G.NewTensor(g, Float, 3, G.WithShape(batch, steps, conf.InputDim), G.WithName("strokes"))
	chars := G.NewTensor(g, Float, 3, G.WithShape(batch, charLen, conf.NumChars), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(batch, charLen), G.WithName("mask"))

	st := c.Init(batch)
	probes := []*stateProbe{probeState(st)}
	for ts := 0; ts < steps; ts++ {
		xt, err := G.Slice(strokes, nil, G.S(ts))
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if st, err = c.Step(st, xt, chars, mask); err != nil {
			t.Fatalf("%+v", err)
		}
		probes = append(probes, probeState(st))
	}

	G.Let(strokes, randomDense(batch, steps, conf.InputDim))
	G.Let(chars, onehot(cyclicChars(batch, charLen, conf.NumChars), conf.NumChars))
	G.Let(mask, ones(batch, charLen))

	m := G.NewTapeMachine(g)
	defer m.Close()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}

	for ts := 1; ts < len(probes); ts++ {
		alpha := probes[ts].alpha.Data().([]float32)
		beta := probes[ts].beta.Data().([]float32)
		kappa := probes[ts].kappa.Data().([]float32)
		prev := probes[ts-1].kappa.Data().([]float32)
		for i := range kappa {
			if alpha[i] <= 0 {
				t.Errorf("step %d: alpha[%d] = %v, want > 0", ts, i, alpha[i])
			}
			if beta[i] <= 0 {
				t.Errorf("step %d: beta[%d] = %v, want > 0", ts, i, beta[i])
			}
			if kappa[i] <= prev[i] {
				t.Errorf("step %d: kappa[%d] = %v, want > %v", ts, i, kappa[i], prev[i])
			}
		}
	}
}

func TestUnrollShapes(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 8, WindowMixtures: 3, NumChars: 6}
	batch, steps, charLen := 2, 4, 5

	g := G.NewGraph()
	c := NewAttnCell(g, conf)
	strokes := G.NewTensor(g, Float, 3, G.WithShape(batch, steps, conf.InputDim), G.WithName("strokes"))
	chars := G.NewTensor(g, Float, 3, G.WithShape(batch, charLen, conf.NumChars), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(batch, charLen), G.WithName("mask"))

	hiddens, windows, err := c.Unroll(strokes, chars, mask)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, steps, len(hiddens))
	assert.Equal(t, steps, len(windows))
	for i := range hiddens {
		assert.Equal(t, tensor.Shape{batch, conf.HiddenDim}, hiddens[i].Shape())
		assert.Equal(t, tensor.Shape{batch, conf.NumChars}, windows[i].Shape())
	}
}

func TestUnrollIsDeterministic(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 8, WindowMixtures: 3, NumChars: 6}
	batch, steps, charLen := 2, 4, 5

	g := G.NewGraph()
	c := NewAttnCell(g, conf)
	strokes := G.NewTensor(g, Float, 3, G.WithShape(batch, steps, conf.InputDim), G.WithName("strokes"))
	chars := G.NewTensor(g, Float, 3, G.WithShape(batch, charLen, conf.NumChars), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(batch, charLen), G.WithName("mask"))

	hiddens, windows, err := c.Unroll(strokes, chars, mask)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	lastH, lastW := hiddens[len(hiddens)-1], windows[len(windows)-1]

	G.Let(strokes, randomDense(batch, steps, conf.InputDim))
	G.Let(chars, onehot(cyclicChars(batch, charLen, conf.NumChars), conf.NumChars))
	G.Let(mask, ones(batch, charLen))

	m := G.NewTapeMachine(g)
	defer m.Close()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	firstH := cloneF32(valData(t, lastH))
	firstW := cloneF32(valData(t, lastW))

	m.Reset()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, firstH, valData(t, lastH))
	assert.Equal(t, firstW, valData(t, lastW))
}

// Rewriting characters at masked positions must not change a single output
// bit: the mask zeroes their attention weight before it touches the one-hots.
func TestUnrollIgnoresMaskedCharacters(t *testing.T) {
	conf := Config{InputDim: 3, HiddenDim: 4, WindowMixtures: 3, NumChars: 5}
	batch, steps, charLen := 2, 3, 4

	g := G.NewGraph()
	c := NewAttnCell(g, conf)
	strokes := G.NewTensor(g, Float, 3, G.WithShape(batch, steps, conf.InputDim), G.WithName("strokes"))
	chars := G.NewTensor(g, Float, 3, G.WithShape(batch, charLen, conf.NumChars), G.WithName("chars"))
	mask := G.NewMatrix(g, Float, G.WithShape(batch, charLen), G.WithName("mask"))

	hiddens, windows, err := c.Unroll(strokes, chars, mask)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	hiddenVals := make([]G.Value, steps)
	windowVals := make([]G.Value, steps)
	for i := range hiddens {
		G.Read(hiddens[i], &hiddenVals[i])
		G.Read(windows[i], &windowVals[i])
	}

	snapshot := func() [][]float32 {
		out := make([][]float32, 0, 2*steps)
		for i := 0; i < steps; i++ {
			out = append(out, cloneF32(hiddenVals[i].Data().([]float32)))
			out = append(out, cloneF32(windowVals[i].Data().([]float32)))
		}
		return out
	}

	maskRows := [][]float32{{1, 1, 1, 0}, {1, 1, 0, 0}}
	G.Let(strokes, tensor.New(tensor.Of(Float), tensor.WithShape(batch, steps, conf.InputDim)))
	G.Let(mask, matrix(maskRows))

	m := G.NewTapeMachine(g)
	defer m.Close()

	G.Let(chars, onehot([][]int{{0, 1, 2, 3}, {1, 2, 3, 4}}, conf.NumChars))
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	want := snapshot()

	// Same text where it matters, garbage where the mask is zero.
	m.Reset()
	G.Let(chars, onehot([][]int{{0, 1, 2, 1}, {1, 2, 0, 2}}, conf.NumChars))
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, want, snapshot())
}
