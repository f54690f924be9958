package synthnet

import (
	"github.com/chewxy/math32"
	"github.com/scrawlnet/scrawl/rnn"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// lossEps guards every log and the 1-rho² denominator. Densities can
// legitimately underflow to zero far from the data.
const lossEps = 1e-6

// mixture is one step's output distribution: a Bernoulli pen bit and a
// bivariate Gaussian mixture over the pen offsets.
type mixture struct {
	e              *G.Node // (batch, 1) pen probability
	pi             *G.Node // (batch, M) component weights
	mu1, mu2       *G.Node // (batch, M) offset means
	sigma1, sigma2 *G.Node // (batch, M) offset deviations
	rho            *G.Node // (batch, M) correlations
}

// splitMixture carves the raw head output (batch, 1+6M) into bounded
// parameters, in the layout e | pi | mu1 | mu2 | sigma1 | sigma2 | rho.
func splitMixture(m *rnn.Builder, hat *G.Node, M int) mixture {
	return mixture{
		e:      m.Sigmoid(m.Slice(hat, nil, G.S(0, 1))),
		pi:     m.SoftMax(m.Slice(hat, nil, G.S(1, 1+M))),
		mu1:    m.Slice(hat, nil, G.S(1+M, 1+2*M)),
		mu2:    m.Slice(hat, nil, G.S(1+2*M, 1+3*M)),
		sigma1: m.Exp(m.Slice(hat, nil, G.S(1+3*M, 1+4*M))),
		sigma2: m.Exp(m.Slice(hat, nil, G.S(1+4*M, 1+5*M))),
		rho:    m.Tanh(m.Slice(hat, nil, G.S(1+5*M, 1+6*M))),
	}
}

// consts are the scalar constants the loss needs, created once per graph.
type consts struct {
	one, two, twoPi, eps, invBatch *G.Node
}

func newConsts(batchSize int) consts {
	return consts{
		one:      G.NewConstant(float32(1), G.WithName("one")),
		two:      G.NewConstant(float32(2), G.WithName("two")),
		twoPi:    G.NewConstant(float32(2*math32.Pi), G.WithName("twoPi")),
		eps:      G.NewConstant(float32(lossEps), G.WithName("eps")),
		invBatch: G.NewConstant(1/float32(batchSize), G.WithName("invBatch")),
	}
}

// stepNLL is one step's negative log-likelihood: the mixture density of the
// target offsets plus the Bernoulli pen term, gated by the target-position
// mask and summed over the batch into a scalar.
func stepNLL(m *rnn.Builder, mix mixture, target, maskT *G.Node, cs consts) *G.Node {
	batch := target.Shape()[0]
	pen := m.Slice(target, nil, G.S(0, 1)) // (batch, 1)
	x1 := m.Slice(target, nil, G.S(1, 2))
	x2 := m.Slice(target, nil, G.S(2, 3))

	// per-component quadratic form, (batch, M) throughout
	d1 := m.BroadcastSub(x1, mix.mu1, []byte{1}, nil)
	d2 := m.BroadcastSub(x2, mix.mu2, []byte{1}, nil)
	z1 := m.Square(m.HadamardDiv(d1, mix.sigma1))
	z2 := m.Square(m.HadamardDiv(d2, mix.sigma2))
	cross := m.HadamardDiv(m.Hadamard(mix.rho, m.Hadamard(d1, d2)), m.Hadamard(mix.sigma1, mix.sigma2))
	z := m.Sub(m.Add(z1, z2), m.Mul(cs.two, cross))

	omr := m.Add(m.Sub(cs.one, m.Square(mix.rho)), cs.eps) // 1-rho², kept off zero
	expo := m.Exp(m.Neg(m.HadamardDiv(z, m.Mul(cs.two, omr))))
	norm := m.Mul(cs.twoPi, m.Hadamard(m.Hadamard(mix.sigma1, mix.sigma2), m.Sqrt(omr)))

	density := m.Sum(m.Hadamard(mix.pi, m.HadamardDiv(expo, norm)), 1) // (batch,)
	logDensity := m.Log(m.Add(density, cs.eps))

	logPen := m.Add(
		m.Hadamard(pen, m.Log(m.Add(mix.e, cs.eps))),
		m.Hadamard(m.Sub(cs.one, pen), m.Log(m.Add(m.Sub(cs.one, mix.e), cs.eps))),
	)
	logPen = m.Reshape(logPen, tensor.Shape{batch})

	ll := m.Hadamard(m.Add(logDensity, logPen), maskT)
	return m.Neg(m.Sum(ll))
}
