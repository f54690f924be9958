package synthnet

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the layer topology as graphviz dot, for eyeballing the
// wiring rather than the full expression graph.
func (n *Net) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	conf := n.Config
	H := conf.RNN.HiddenDim
	skipDim := conf.RNN.InputDim + H + conf.RNN.NumChars
	label := func(format string, args ...interface{}) map[string]string {
		return map[string]string{
			"fontname": "Monaco",
			"shape":    "box",
			"label":    fmt.Sprintf("\""+format+"\"", args...),
		}
	}

	g.AddNode("G", "strokes", label("strokes %dx%dx%d", conf.BatchSize, conf.StrokeLen, conf.RNN.InputDim))
	g.AddNode("G", "chars", label("chars %dx%dx%d (masked)", conf.BatchSize, conf.CharLen, conf.RNN.NumChars))
	g.AddNode("G", "attention", label("attention cell %d to %d, K=%d", conf.RNN.InputDim+conf.RNN.NumChars, H, conf.RNN.WindowMixtures))
	g.AddNode("G", "rnn2", label("rnn2 %d to %d", skipDim, H))
	g.AddNode("G", "rnn3", label("rnn3 %d to %d", skipDim, H))
	g.AddNode("G", "mixture", label("mixture head %d to %d", 3*H, 1+6*conf.MixtureComponents))
	g.AddNode("G", "loss", label("masked NLL / %d", conf.BatchSize))

	g.AddEdge("strokes", "attention", true, nil)
	g.AddEdge("chars", "attention", true, nil)
	g.AddEdge("strokes", "rnn2", true, nil)
	g.AddEdge("attention", "rnn2", true, nil)
	g.AddEdge("strokes", "rnn3", true, nil)
	g.AddEdge("rnn2", "rnn3", true, nil)
	g.AddEdge("attention", "rnn3", true, nil)
	g.AddEdge("attention", "mixture", true, nil)
	g.AddEdge("rnn2", "mixture", true, nil)
	g.AddEdge("rnn3", "mixture", true, nil)
	g.AddEdge("mixture", "loss", true, nil)
	g.AddEdge("strokes", "loss", true, nil)

	return g.String()
}
