package rnn

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// WindowParams is one (alpha, beta, kappa) triple per Gaussian window
// component: importance, width and center, each (batch, K). Kappa is the
// only member carried across time steps, and it never decreases.
type WindowParams struct {
	Alpha, Beta, Kappa *G.Node
}

// Window computes the soft character summary for one time step.
//
// chars is the (batch, charLen, numChars) one-hot character tensor and mask
// the (batch, charLen) validity mask. Each position j gets the importance
// phi(j) = Σ_k alpha_k · exp(-beta_k · (kappa_k - j)²); phi is a mixture
// density and does not sum to one over positions. Masked positions
// contribute exactly zero no matter how large phi grows there. The result is
// the phi-weighted sum of the one-hot rows, (batch, numChars).
func Window(chars, mask *G.Node, p WindowParams) (*G.Node, error) {
	var m Builder
	w := windowNode(&m, chars, mask, p)
	if err := m.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

func windowNode(m *Builder, chars, mask *G.Node, p WindowParams) *G.Node {
	if m.err != nil {
		return nil
	}
	batch, k := p.Kappa.Shape()[0], p.Kappa.Shape()[1]
	charLen := chars.Shape()[1]

	alpha := m.Reshape(p.Alpha, tensor.Shape{batch, k, 1})
	beta := m.Reshape(p.Beta, tensor.Shape{batch, k, 1})
	kappa := m.Reshape(p.Kappa, tensor.Shape{batch, k, 1})

	// (batch, K, charLen) distances to each position, then the Gaussian bumps
	d := m.BroadcastSub(kappa, locations(charLen), []byte{2}, []byte{0, 1})
	bumps := m.Exp(m.Neg(m.BroadcastHadamard(beta, m.Square(d), []byte{2}, nil)))
	phi := m.Sum(m.BroadcastHadamard(alpha, bumps, []byte{2}, nil), 1) // (batch, charLen)
	phi = m.Hadamard(phi, mask)

	weighted := m.BroadcastHadamard(chars, m.Reshape(phi, tensor.Shape{batch, charLen, 1}), nil, []byte{2})
	return m.Sum(weighted, 1)
}

// locations is the constant position index [0, 1, …, n-1], shaped to
// broadcast against (batch, K, n).
func locations(n int) *G.Node {
	backing := make([]float32, n)
	for j := range backing {
		backing[j] = float32(j)
	}
	u := tensor.New(tensor.WithShape(1, 1, n), tensor.WithBacking(backing))
	return G.NewConstant(u, G.WithName("u"))
}
