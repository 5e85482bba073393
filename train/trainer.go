package train

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/convqa/convqa/checkpoint"
	"github.com/convqa/convqa/config"
	"github.com/convqa/convqa/coqa"
	"github.com/convqa/convqa/format"
	"github.com/convqa/convqa/losses"
	"github.com/convqa/convqa/schedule"
)

// Trainer runs the training state machine: building -> training ->
// evaluating -> checkpointing -> training | done. Construction validates
// the configuration and builds every collaborator, so an invalid model
// type, optimizer or scheduler fails before any step runs.
type Trainer struct {
	cfg   *config.Config
	model Model
	loss  losses.ComputeLoss
	opt   Optimizer
	lr    schedule.LRScheduler
	tf    schedule.Scheduler

	trainLoader DataLoader
	valLoader   DataLoader
	sink        MetricSink

	// OnStep, when set, observes progress after every training step.
	OnStep func(step, totalSteps int)

	runID   string
	epoch   int
	step    int
	counter int
}

// New builds a trainer for the configuration. The loaders and sink are
// treated as already prepared; the trainer does not wrap them further.
func New(cfg *config.Config, model Model, trainLoader, valLoader DataLoader, sink MetricSink) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loss, err := losses.New(cfg.ModelType, losses.Params{
		MaxRationaleLength: cfg.MaxRationaleLength,
		YNGWeight:          cfg.YNGLossWeight,
		RationaleWeight:    cfg.RationaleLossWeight,
		GenerativeWeight:   cfg.GenerativeLossWeight,
	})
	if err != nil {
		return nil, err
	}

	opt, err := NewOptimizer(cfg.Optimizer, cfg.LearningRate, cfg.WeightDecay)
	if err != nil {
		return nil, err
	}

	totalSteps := cfg.NumEpochs * trainLoader.Batches()
	lr, err := schedule.NewLR(cfg.Scheduler, cfg.LearningRate, totalSteps, cfg.WarmupFraction)
	if err != nil {
		return nil, err
	}
	tf, err := schedule.NewTeacherForce(cfg.TeacherForceScheduler, cfg.TFStart, cfg.TFEnd, totalSteps, cfg.TFFraction)
	if err != nil {
		return nil, err
	}

	if sink == nil {
		sink = NopSink{}
	}

	return &Trainer{
		cfg:         cfg,
		model:       model,
		loss:        loss,
		opt:         opt,
		lr:          lr,
		tf:          tf,
		trainLoader: trainLoader,
		valLoader:   valLoader,
		sink:        sink,
		runID:       uuid.NewString(),
	}, nil
}

// TotalSteps reports the number of training steps one run processes.
func (t *Trainer) TotalSteps() int {
	return t.cfg.NumEpochs * t.trainLoader.Batches()
}

// RunID identifies this run in metric records and checkpoints.
func (t *Trainer) RunID() string { return t.runID }

// Run processes num_epochs passes over the training loader. A step-level
// error aborts the run; restart from the latest checkpoint is manual.
func (t *Trainer) Run(ctx context.Context) error {
	started := time.Now()
	total := t.TotalSteps()
	slog.Info("starting training run",
		"run_id", t.runID,
		"model_type", t.cfg.ModelType,
		"total_steps", total,
		"steps_per_epoch", t.trainLoader.Batches(),
		"accumulation_steps", t.cfg.AccumulationSteps)

	t.model.SetTraining(true)

	avgLoss := &AvgValue{}
	avgInner := make(map[string]*AvgValue)

	for ; t.epoch < t.cfg.NumEpochs; t.epoch++ {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			batch, ok := t.trainLoader.Next()
			if !ok {
				break
			}

			lr := t.lr.LastLR()
			tf := t.tf.Value()

			lossValue, inner, err := t.trainBatch(batch, tf)
			if err != nil {
				return fmt.Errorf("step %d: %w", t.step, err)
			}

			t.step++
			n := batch.Size()
			avgLoss.Update(lossValue, n)
			for name, v := range inner {
				key := "avg_" + name
				if avgInner[key] == nil {
					avgInner[key] = &AvgValue{}
				}
				avgInner[key].Update(v, n)
			}

			record := map[string]float64{
				"train_loss":    lossValue,
				"lr":            lr,
				"teacher_force": tf,
			}
			for name, v := range inner {
				record[name] = v
			}
			t.sink.Log(t.step, record)

			if t.OnStep != nil {
				t.OnStep(t.step, total)
			}

			if t.step%t.cfg.LogInterval == 0 || t.step == total {
				valLoss, valInner, err := t.Evaluate(ctx)
				if err != nil {
					return fmt.Errorf("validation at step %d: %w", t.step, err)
				}

				combined := map[string]float64{
					"avg_train_loss": avgLoss.Value(),
					"val_loss":       valLoss,
					"lr":             lr,
					"teacher_force":  tf,
				}
				for name, avg := range avgInner {
					combined[name] = avg.Value()
				}
				for name, v := range valInner {
					combined["val_"+name] = v
				}
				t.sink.Log(t.step, combined)
				slog.Info("evaluation",
					"step", t.step,
					"train_loss", avgLoss.Value(),
					"val_loss", valLoss,
					"lr", lr)

				avgLoss.Reset()
				avgInner = make(map[string]*AvgValue)
			}

			if t.step%t.cfg.CheckpointInterval == 0 || t.step == total {
				if err := t.saveCheckpoint(); err != nil {
					return fmt.Errorf("checkpoint at step %d: %w", t.step, err)
				}
				t.sink.Log(t.step, map[string]float64{"checkpoint_counter": float64(t.counter)})
				t.counter++
			}
		}

		// Long multi-epoch runs fragment the heap; reclaim at the
		// epoch boundary.
		runtime.GC()
		debug.FreeOSMemory()

		t.trainLoader.Reset()
	}

	slog.Info("training run complete",
		"run_id", t.runID,
		"steps", t.step,
		"checkpoints", t.counter,
		"duration", format.HumanDuration(time.Since(started)))
	return nil
}

// trainBatch performs one forward/backward pass and applies the optimizer
// on accumulation boundaries. The schedulers advance every step
// regardless: deferring them with the optimizer would change the
// effective learning rate and teacher-force schedules.
func (t *Trainer) trainBatch(batch coqa.Batch, tf float64) (float64, map[string]float64, error) {
	inputs := batch.Select(t.model.ForwardArgs())

	outputs, err := t.model.Forward(inputs, tf)
	if err != nil {
		return 0, nil, err
	}

	out, err := t.loss.Compute(outputs, batch)
	if err != nil {
		return 0, nil, err
	}

	if err := t.model.Backward(out.Grads); err != nil {
		return 0, nil, err
	}

	if t.cfg.GradientClip > 0 {
		ClipGradNorm(t.model.Parameters(), t.cfg.GradientClip)
	}

	if t.step%t.cfg.AccumulationSteps == 0 {
		if err := t.opt.Step(t.model.Parameters()); err != nil {
			return 0, nil, err
		}
		t.opt.ZeroGrad(t.model.Parameters())
	}
	t.lr.Step()
	t.opt.SetLR(t.lr.LastLR())
	t.tf.Step()

	inner := make(map[string]float64, len(out.Inner))
	for name, v := range out.Inner {
		inner[name] = float64(v)
	}
	return float64(out.Total), inner, nil
}

// Evaluate runs a full pass over the validation loader with the model in
// eval mode and no gradient updates, returning the weighted average loss
// and inner losses.
func (t *Trainer) Evaluate(ctx context.Context) (float64, map[string]float64, error) {
	t.model.SetTraining(false)
	defer t.model.SetTraining(true)

	avgLoss := &AvgValue{}
	avgInner := make(map[string]*AvgValue)

	t.valLoader.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		batch, ok := t.valLoader.Next()
		if !ok {
			break
		}

		inputs := batch.Select(t.model.ForwardArgs())
		outputs, err := t.model.Forward(inputs, 0)
		if err != nil {
			return 0, nil, err
		}

		out, err := t.loss.Compute(outputs, batch)
		if err != nil {
			return 0, nil, err
		}

		n := batch.Size()
		avgLoss.Update(float64(out.Total), n)
		for name, v := range out.Inner {
			if avgInner[name] == nil {
				avgInner[name] = &AvgValue{}
			}
			avgInner[name].Update(float64(v), n)
		}
	}

	inner := make(map[string]float64, len(avgInner))
	for name, avg := range avgInner {
		inner[name] = avg.Value()
	}
	return avgLoss.Value(), inner, nil
}

func (t *Trainer) saveCheckpoint() error {
	model := make(map[string]checkpoint.Tensor)
	for _, p := range t.model.Parameters() {
		enc, err := checkpoint.EncodeTensor(p.Value, t.cfg.Precision)
		if err != nil {
			return err
		}
		model[p.Name] = enc
	}

	optState, err := t.opt.Snapshot()
	if err != nil {
		return err
	}

	st := &checkpoint.State{
		RunID:             t.runID,
		Epoch:             t.epoch,
		Step:              t.step,
		Counter:           t.counter,
		Model:             model,
		Optimizer:         optState,
		LRSchedulerSteps:  t.lr.Steps(),
		TeacherForceSteps: t.tf.Steps(),
	}

	path := filepath.Join(t.cfg.CheckpointDir, checkpoint.Filename(t.counter))
	return checkpoint.Save(path, st)
}

// Resume restores trainer, model, optimizer and scheduler state from a
// checkpoint file. Training restarts the checkpoint's in-progress epoch
// from its boundary, with the next checkpoint counter.
func (t *Trainer) Resume(path string) error {
	st, err := checkpoint.Load(path)
	if err != nil {
		return err
	}

	byName := make(map[string]*Parameter)
	for _, p := range t.model.Parameters() {
		byName[p.Name] = p
	}
	for name, enc := range st.Model {
		p, ok := byName[name]
		if !ok {
			return fmt.Errorf("checkpoint parameter %q not in model", name)
		}
		dec, err := enc.Decode()
		if err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		src := dec.Data().([]float32)
		dst := p.Value.Data().([]float32)
		if len(dst) != len(src) {
			return fmt.Errorf("checkpoint parameter %q has %d values, model expects %d", name, len(src), len(dst))
		}
		copy(dst, src)
	}

	if len(st.Optimizer) > 0 {
		if err := t.opt.Restore(st.Optimizer); err != nil {
			return fmt.Errorf("restore optimizer: %w", err)
		}
	}

	// A checkpoint taken mid-epoch rewinds to that epoch's boundary:
	// the restarted epoch replays from its first batch and the run still
	// processes exactly TotalSteps batches, so final-step evaluation and
	// checkpointing land where they should. The schedulers rewind by the
	// same number of steps.
	boundary := st.Epoch * t.trainLoader.Batches()
	rollback := st.Step - boundary
	t.lr.SetSteps(st.LRSchedulerSteps - rollback)
	t.tf.SetSteps(st.TeacherForceSteps - rollback)
	t.epoch = st.Epoch
	t.step = boundary
	t.counter = st.Counter + 1
	t.runID = st.RunID

	slog.Info("resumed from checkpoint", "path", path, "epoch", t.epoch, "step", t.step, "counter", st.Counter)
	return nil
}
