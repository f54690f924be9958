package rnn

// Config sizes the attention cell.
type Config struct {
	InputDim       int `json:"input_dim"`       // stroke features per time step
	HiddenDim      int `json:"hidden_dim"`      // LSTM width
	WindowMixtures int `json:"window_mixtures"` // Gaussian window components (K)
	NumChars       int `json:"num_chars"`       // character classes in the alphabet
}

// DefaultConf is the usual handwriting-synthesis sizing: (pen, dx, dy)
// inputs, a 400-wide cell and a ten-component window.
func DefaultConf(numChars int) Config {
	return Config{
		InputDim:       3,
		HiddenDim:      400,
		WindowMixtures: 10,
		NumChars:       numChars,
	}
}

func (c Config) IsValid() bool {
	return c.InputDim >= 1 &&
		c.HiddenDim >= 1 &&
		c.WindowMixtures >= 1 &&
		c.NumChars >= 2
}
