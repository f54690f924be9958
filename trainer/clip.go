package trainer

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/vecf32"
)

// ClipNorm rescales the gradients of params in place so their joint L2 norm
// does not exceed max, returning the pre-clip norm. Gradients live on the
// nodes' dual values, so this must run after the backward pass and before
// the solver step.
func ClipNorm(params G.Nodes, max float32) (float32, error) {
	var sumSq float32
	grads := make([][]float32, 0, len(params))
	for _, p := range params {
		g, err := p.Grad()
		if err != nil {
			return 0, errors.Wrapf(err, "no gradient on %v", p.Name())
		}
		data := g.Data().([]float32)
		grads = append(grads, data)
		for _, v := range data {
			sumSq += v * v
		}
	}
	norm := math32.Sqrt(sumSq)
	if math32.IsNaN(norm) || math32.IsInf(norm, 0) {
		return norm, errors.Errorf("gradient norm is %v", norm)
	}
	if norm <= max || norm == 0 {
		return norm, nil
	}
	scale := max / norm
	for _, data := range grads {
		vecf32.Scale(data, scale)
	}
	return norm, nil
}
