package data

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/pkg/errors"
)

// Sample pairs a transcription with its pen trajectory. Each point is
// (pen, dx, dy): pen is 1 when the point starts a new stroke, dx/dy are
// offsets from the previous point.
type Sample struct {
	Text   string       `json:"text"`
	Points [][3]float32 `json:"points"`
}

// Dataset is an in-memory corpus.
type Dataset []Sample

// LoadDataset reads a JSON corpus from disk.
func LoadDataset(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	var ds Dataset
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return nil, errors.Wrapf(err, "failed to decode corpus %q", path)
	}
	return ds, nil
}

// Save writes the corpus as JSON.
func (ds Dataset) Save(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(ds); err != nil {
		return errors.Wrapf(err, "failed to encode corpus %q", path)
	}
	return nil
}

// Split deals the corpus into a training and a validation part. The deal is
// deterministic for a given seed.
func (ds Dataset) Split(valFrac float64, seed int64) (train, val Dataset) {
	perm := rand.New(rand.NewSource(seed)).Perm(len(ds))
	nVal := int(float64(len(ds)) * valFrac)
	for i, p := range perm {
		if i < nVal {
			val = append(val, ds[p])
		} else {
			train = append(train, ds[p])
		}
	}
	return train, val
}
