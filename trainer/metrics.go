package trainer

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/scrawlnet/scrawl/data"
)

// Metric is an extra per-batch scalar derived from the batch loss and the
// batch itself, tracked under its name next to the loss.
type Metric struct {
	Name string
	F    func(loss float64, b *data.Batch) float64
}

// Tracker accumulates named per-batch scalars and aggregates them per epoch.
type Tracker struct {
	order  []string
	series map[string][]float64
}

func NewTracker() *Tracker {
	return &Tracker{series: make(map[string][]float64)}
}

// Track appends one observation under key.
func (tr *Tracker) Track(key string, v float64) {
	if _, ok := tr.series[key]; !ok {
		tr.order = append(tr.order, key)
	}
	tr.series[key] = append(tr.series[key], v)
}

// Mean averages everything tracked under key so far.
func (tr *Tracker) Mean(key string) float64 {
	xs := tr.series[key]
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Result aggregates every key into its mean.
func (tr *Tracker) Result() map[string]float64 {
	out := make(map[string]float64, len(tr.order))
	for _, k := range tr.order {
		out[k] = tr.Mean(k)
	}
	return out
}

// Reset drops all series.
func (tr *Tracker) Reset() {
	tr.order = tr.order[:0]
	tr.series = make(map[string][]float64)
}

// Dump writes one CSV row per key: key, mean, stddev, n. Keys appear in
// first-tracked order.
func (tr *Tracker) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"key", "mean", "std", "n"}); err != nil {
		return errors.WithStack(err)
	}
	for _, k := range tr.order {
		xs := tr.series[k]
		mean, std := stat.MeanStdDev(xs, nil)
		record := []string{
			k,
			strconv.FormatFloat(mean, 'f', 6, 64),
			strconv.FormatFloat(std, 'f', 6, 64),
			strconv.Itoa(len(xs)),
		}
		if err := w.Write(record); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}

// DumpHistory writes the trainer's epoch aggregates as CSV, one row per
// epoch, columns sorted by name.
func (t *Trainer) DumpHistory(filename string) error {
	seen := make(map[string]bool)
	var keys []string
	for _, ep := range t.History {
		for k := range ep {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"epoch"}, keys...)); err != nil {
		return errors.WithStack(err)
	}
	for i, ep := range t.History {
		row := make([]string, 0, len(keys)+1)
		row = append(row, strconv.Itoa(i+1))
		for _, k := range keys {
			row = append(row, strconv.FormatFloat(ep[k], 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
