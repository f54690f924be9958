package data

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// StrokeDims is the width of a stroke feature vector: (pen, dx, dy).
const StrokeDims = 3

// BatchConf fixes the shapes every batch is collated to.
type BatchConf struct {
	BatchSize int `json:"batch_size"`
	StrokeLen int `json:"stroke_len"`
	CharLen   int `json:"char_len"`
}

func DefaultBatchConf() BatchConf {
	return BatchConf{
		BatchSize: 32,
		StrokeLen: 300,
		CharLen:   50,
	}
}

func (c BatchConf) IsValid() bool {
	// at least two stroke steps, since targets are inputs shifted by one
	return c.BatchSize >= 1 && c.StrokeLen >= 2 && c.CharLen >= 1
}

// Batch is the fixed four-tensor tuple the training loop consumes.
type Batch struct {
	Chars      *tensor.Dense // (batch, charLen, numChars) one-hot
	CharMask   *tensor.Dense // (batch, charLen)
	Strokes    *tensor.Dense // (batch, strokeLen, StrokeDims)
	StrokeMask *tensor.Dense // (batch, strokeLen)
}

// Release puts the batch's backing buffers back into the pool. The caller
// must be done with all four tensors.
func (b *Batch) Release() {
	for _, d := range []*tensor.Dense{b.Chars, b.CharMask, b.Strokes, b.StrokeMask} {
		if d != nil {
			returnBuf(d.Data().([]float32))
		}
	}
}

// Loader collates a corpus into fixed-shape batches. The ragged tail that
// cannot fill a whole batch is dropped. A Loader is not safe for concurrent
// use.
type Loader struct {
	ds    Dataset
	alpha *Alphabet
	conf  BatchConf
	order []int
}

func NewLoader(ds Dataset, alpha *Alphabet, conf BatchConf) (*Loader, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid batch config %+v", conf)
	}
	if len(ds) < conf.BatchSize {
		return nil, errors.Errorf("corpus of %d samples cannot fill a batch of %d", len(ds), conf.BatchSize)
	}
	l := &Loader{ds: ds, alpha: alpha, conf: conf, order: make([]int, len(ds))}
	for i := range l.order {
		l.order[i] = i
	}
	return l, nil
}

// Len counts whole batches.
func (l *Loader) Len() int { return len(l.ds) / l.conf.BatchSize }

// Conf returns the shapes this loader collates to.
func (l *Loader) Conf() BatchConf { return l.conf }

// Shuffle reorders the corpus. Call it between epochs.
func (l *Loader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l.order), func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
}

// Batch collates the i-th batch. Trajectories beyond StrokeLen are cut,
// shorter ones zero-padded; the masks record which positions are real.
func (l *Loader) Batch(i int) (*Batch, error) {
	conf := l.conf
	if i < 0 || i >= l.Len() {
		return nil, errors.Errorf("batch %d out of range [0, %d)", i, l.Len())
	}
	numChars := l.alpha.Size()

	chars := borrowBuf(conf.BatchSize * conf.CharLen * numChars)
	charMask := borrowBuf(conf.BatchSize * conf.CharLen)
	strokes := borrowBuf(conf.BatchSize * conf.StrokeLen * StrokeDims)
	strokeMask := borrowBuf(conf.BatchSize * conf.StrokeLen)
	zero(chars)
	zero(charMask)
	zero(strokes)
	zero(strokeMask)

	for b := 0; b < conf.BatchSize; b++ {
		s := l.ds[l.order[i*conf.BatchSize+b]]

		idx, mask, err := l.alpha.Encode(s.Text, conf.CharLen)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %q", s.Text)
		}
		OneHot(idx, numChars, chars[b*conf.CharLen*numChars:(b+1)*conf.CharLen*numChars])
		copy(charMask[b*conf.CharLen:(b+1)*conf.CharLen], mask)

		n := len(s.Points)
		if n > conf.StrokeLen {
			n = conf.StrokeLen
		}
		for t := 0; t < n; t++ {
			off := (b*conf.StrokeLen + t) * StrokeDims
			strokes[off] = s.Points[t][0]
			strokes[off+1] = s.Points[t][1]
			strokes[off+2] = s.Points[t][2]
			strokeMask[b*conf.StrokeLen+t] = 1
		}
	}

	return &Batch{
		Chars:      tensor.New(tensor.WithShape(conf.BatchSize, conf.CharLen, numChars), tensor.WithBacking(chars)),
		CharMask:   tensor.New(tensor.WithShape(conf.BatchSize, conf.CharLen), tensor.WithBacking(charMask)),
		Strokes:    tensor.New(tensor.WithShape(conf.BatchSize, conf.StrokeLen, StrokeDims), tensor.WithBacking(strokes)),
		StrokeMask: tensor.New(tensor.WithShape(conf.BatchSize, conf.StrokeLen), tensor.WithBacking(strokeMask)),
	}, nil
}
