// Package trainer drives supervised training: epochs of shuffled batches,
// per-group gradient clipping, solver steps, metric tracking and optional
// no-gradient validation. It knows nothing about the network beyond the
// Trainee contract.
package trainer

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"

	"github.com/scrawlnet/scrawl/data"
)

const defaultLR = 1e-4

// Trainee is what the driver trains. ComputeLoss prices one batch and
// leaves gradients on the learnables; ClipGroups names which learnables
// are clipped together.
type Trainee interface {
	ComputeLoss(*data.Batch) (float64, error)
	Learnables() G.Nodes
	ClipGroups() map[string]G.Nodes
}

// Validator runs no-gradient passes on held-out data. Sync is called once
// per validation epoch, before the first batch.
type Validator interface {
	Sync() error
	EvalLoss(*data.Batch) (float64, error)
}

// Loader hands out collated batches.
type Loader interface {
	Len() int
	Batch(int) (*data.Batch, error)
	Shuffle(*rand.Rand)
}

// Config tunes the driver, not the model.
type Config struct {
	ClipNorm        float32 `json:"clip_norm"`
	BatchesPerEpoch int     `json:"batches_per_epoch"` // 0 means one full pass
	LogEvery        int     `json:"log_every"`
	Seed            int64   `json:"seed"`

	// Schedule maps a 1-based epoch to its learning rate; nil keeps the
	// solver default. When the rate moves, the solver is rebuilt and its
	// accumulated state does not survive.
	Schedule  func(epoch int) float64   `json:"-"`
	NewSolver func(lr float64) G.Solver `json:"-"`

	Metrics []Metric `json:"-"`
}

func DefaultConf() Config {
	return Config{
		ClipNorm: 10,
		LogEvery: 10,
		Seed:     1,
	}
}

func defaultSolver(lr float64) G.Solver {
	return G.NewRMSPropSolver(G.WithLearnRate(lr))
}

// Trainer drives epochs of clip-and-step training with optional validation.
type Trainer struct {
	Config

	model   Trainee
	val     Validator
	train   Loader
	heldout Loader

	solver G.Solver
	lr     float64
	rng    *rand.Rand
	runID  string
	log    *logrus.Entry
	epoch  int

	// History holds one aggregate map per completed epoch.
	History []map[string]float64
}

func New(conf Config, model Trainee, train Loader, log *logrus.Logger) *Trainer {
	if conf.ClipNorm <= 0 {
		conf.ClipNorm = 10
	}
	if conf.NewSolver == nil {
		conf.NewSolver = defaultSolver
	}
	if log == nil {
		log = logrus.New()
	}
	runID := uuid.New().String()
	return &Trainer{
		Config: conf,
		model:  model,
		train:  train,
		solver: conf.NewSolver(defaultLR),
		lr:     defaultLR,
		rng:    rand.New(rand.NewSource(conf.Seed)),
		runID:  runID,
		log:    log.WithField("run", runID),
	}
}

// WithValidation attaches a validator and its held-out loader.
func (t *Trainer) WithValidation(v Validator, heldout Loader) *Trainer {
	t.val = v
	t.heldout = heldout
	return t
}

// RunID identifies this trainer's runs in the logs.
func (t *Trainer) RunID() string { return t.runID }

// Run trains for the given number of epochs, validating after each when a
// validator is attached. It stops at the first failing batch.
func (t *Trainer) Run(epochs int) error {
	for e := 0; e < epochs; e++ {
		t.epoch++
		t.reschedule()

		tracker := NewTracker()
		if err := t.trainEpoch(tracker); err != nil {
			return errors.Wrapf(err, "epoch %d", t.epoch)
		}
		if t.val != nil {
			if err := t.validateEpoch(tracker); err != nil {
				return errors.Wrapf(err, "epoch %d validation", t.epoch)
			}
		}

		result := tracker.Result()
		t.History = append(t.History, result)
		fields := logrus.Fields{"epoch": t.epoch, "lr": t.lr}
		for k, v := range result {
			fields[k] = v
		}
		t.log.WithFields(fields).Info("epoch done")
	}
	return nil
}

// reschedule applies the learning-rate schedule, rebuilding the solver when
// the rate moves.
func (t *Trainer) reschedule() {
	if t.Schedule == nil {
		return
	}
	lr := t.Schedule(t.epoch)
	if lr == t.lr {
		return
	}
	t.lr = lr
	t.solver = t.NewSolver(lr)
	t.log.WithFields(logrus.Fields{"epoch": t.epoch, "lr": lr}).Info("learning rate changed")
}

func (t *Trainer) trainEpoch(tracker *Tracker) error {
	t.train.Shuffle(t.rng)
	n := t.train.Len()
	if t.BatchesPerEpoch > 0 {
		n = t.BatchesPerEpoch
	}
	model := G.NodesToValueGrads(t.model.Learnables())

	for i := 0; i < n; i++ {
		b, err := t.train.Batch(i % t.train.Len())
		if err != nil {
			return err
		}
		loss, err := t.step(b, model, tracker)
		b.Release()
		if err != nil {
			return err
		}
		if t.LogEvery > 0 && i%t.LogEvery == 0 {
			t.log.WithFields(logrus.Fields{"epoch": t.epoch, "batch": i, "loss": loss}).Info("train")
		}
	}
	return nil
}

// step prices one batch, then clips each named gradient group and advances
// the solver over all learnables.
func (t *Trainer) step(b *data.Batch, model []G.ValueGrad, tracker *Tracker) (float64, error) {
	loss, err := t.model.ComputeLoss(b)
	if err != nil {
		return 0, err
	}
	tracker.Track("loss", loss)
	for _, m := range t.Metrics {
		tracker.Track(m.Name, m.F(loss, b))
	}

	groups := t.model.ClipGroups()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		norm, err := ClipNorm(groups[name], t.ClipNorm)
		if err != nil {
			return 0, errors.Wrapf(err, "clip %q", name)
		}
		tracker.Track("gnorm_"+name, float64(norm))
	}

	if err := t.solver.Step(model); err != nil {
		return 0, errors.WithStack(err)
	}
	return loss, nil
}

func (t *Trainer) validateEpoch(tracker *Tracker) error {
	if err := t.val.Sync(); err != nil {
		return err
	}
	for i := 0; i < t.heldout.Len(); i++ {
		b, err := t.heldout.Batch(i)
		if err != nil {
			return err
		}
		loss, err := t.val.EvalLoss(b)
		if err != nil {
			b.Release()
			return err
		}
		tracker.Track("val_loss", loss)
		for _, m := range t.Metrics {
			tracker.Track("val_"+m.Name, m.F(loss, b))
		}
		b.Release()
	}
	return nil
}
