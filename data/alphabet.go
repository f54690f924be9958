// Package data turns a handwriting corpus into the fixed-shape tensor
// batches the networks consume: character one-hots with masks, padded
// stroke trajectories with masks.
package data

import (
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCharset covers the transcriptions of the usual handwriting corpora.
const DefaultCharset = " abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.,'\"!?-()&#:;+/%"

var foldT = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold strips diacritics (NFD, drop combining marks, NFC) so accented corpus
// text still lands inside the alphabet.
func Fold(s string) (string, error) {
	out, _, err := transform.String(foldT, s)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return out, nil
}

// Alphabet maps runes to dense class indices for one-hot encoding. Index 0
// is reserved for anything outside the alphabet.
type Alphabet struct {
	byRune map[rune]int
	runes  []rune
}

func NewAlphabet(charset string) *Alphabet {
	a := &Alphabet{
		byRune: make(map[rune]int),
		runes:  []rune{0},
	}
	for _, r := range charset {
		if _, ok := a.byRune[r]; ok {
			continue
		}
		a.byRune[r] = len(a.runes)
		a.runes = append(a.runes, r)
	}
	return a
}

func Default() *Alphabet { return NewAlphabet(DefaultCharset) }

// Size counts the character classes, the unknown class included.
func (a *Alphabet) Size() int { return len(a.runes) }

// Index returns the class of r, 0 if r is not in the alphabet.
func (a *Alphabet) Index(r rune) int {
	if i, ok := a.byRune[r]; ok {
		return i
	}
	return 0
}

// Encode folds text and lays it out over exactly charLen positions: class
// indices plus a mask that is 1 where a real rune sits and 0 on the padded
// tail. Text longer than charLen is truncated.
func (a *Alphabet) Encode(text string, charLen int) (idx []int, mask []float32, err error) {
	folded, err := Fold(text)
	if err != nil {
		return nil, nil, err
	}
	idx = make([]int, charLen)
	mask = make([]float32, charLen)
	for i, r := range []rune(folded) {
		if i >= charLen {
			break
		}
		idx[i] = a.Index(r)
		mask[i] = 1
	}
	return idx, mask, nil
}

// OneHot expands class indices into consecutive rows of dst, which must hold
// len(idx)*numClasses zeroed elements. Out-of-range classes fall back to the
// unknown class.
func OneHot(idx []int, numClasses int, dst []float32) {
	for i, c := range idx {
		if c < 0 || c >= numClasses {
			c = 0
		}
		dst[i*numClasses+c] = 1
	}
}
