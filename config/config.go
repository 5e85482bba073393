// Package config defines the hyperparameter surface of a training run and
// its validation. A Config is constructed once, validated eagerly, and
// passed into each component at construction; invalid enum values fail
// before any expensive setup runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

type Config struct {
	ModelType string `mapstructure:"model_type" json:"model_type"`

	// Loss term weights and bounds.
	YNGLossWeight        float32 `mapstructure:"yng_loss_weight" json:"yng_loss_weight"`
	RationaleLossWeight  float32 `mapstructure:"rationale_loss_weight" json:"rationale_loss_weight"`
	GenerativeLossWeight float32 `mapstructure:"generative_loss_weight" json:"generative_loss_weight"`
	MaxRationaleLength   int     `mapstructure:"max_rationale_length" json:"max_rationale_length"`

	// Optimization.
	Optimizer         string  `mapstructure:"optimizer" json:"optimizer"`
	LearningRate      float64 `mapstructure:"learning_rate" json:"learning_rate"`
	WeightDecay       float64 `mapstructure:"weight_decay" json:"weight_decay"`
	GradientClip      float64 `mapstructure:"gradient_clip" json:"gradient_clip"`
	AccumulationSteps int     `mapstructure:"accumulation_steps" json:"accumulation_steps"`

	// Schedules.
	Scheduler             string  `mapstructure:"scheduler" json:"scheduler"`
	WarmupFraction        float64 `mapstructure:"warmup_fraction" json:"warmup_fraction"`
	TeacherForceScheduler string  `mapstructure:"teacher_force_scheduler" json:"teacher_force_scheduler"`
	TFStart               float64 `mapstructure:"tf_start" json:"tf_start"`
	TFEnd                 float64 `mapstructure:"tf_end" json:"tf_end"`
	TFFraction            float64 `mapstructure:"tf_fraction" json:"tf_fraction"`

	// Run shape and cadence.
	NumEpochs          int `mapstructure:"num_epochs" json:"num_epochs"`
	BatchSize          int `mapstructure:"batch_size" json:"batch_size"`
	ValBatchSize       int `mapstructure:"val_batch_size" json:"val_batch_size"`
	LogInterval        int `mapstructure:"log_interval" json:"log_interval"`
	CheckpointInterval int `mapstructure:"checkpoint_interval" json:"checkpoint_interval"`

	// Accelerator and persistence.
	MixedPrecision string `mapstructure:"mixed_precision" json:"mixed_precision"`
	CPU            bool   `mapstructure:"cpu" json:"cpu"`
	Precision      string `mapstructure:"precision" json:"precision"`
	CheckpointDir  string `mapstructure:"checkpoint_dir" json:"checkpoint_dir"`

	Seed int64 `mapstructure:"seed" json:"seed"`
}

// Default returns the baseline configuration a run starts from before the
// hyperparameter map is applied.
func Default() *Config {
	return &Config{
		ModelType:             "encoder_decoder",
		YNGLossWeight:         1,
		RationaleLossWeight:   1,
		GenerativeLossWeight:  1,
		MaxRationaleLength:    50,
		Optimizer:             "adamw",
		LearningRate:          1e-4,
		AccumulationSteps:     1,
		Scheduler:             "none",
		TeacherForceScheduler: "none",
		TFStart:               1,
		TFEnd:                 0,
		TFFraction:            1,
		NumEpochs:             1,
		BatchSize:             8,
		LogInterval:           50,
		CheckpointInterval:    500,
		MixedPrecision:        "no",
		Precision:             "f32",
		CheckpointDir:         "checkpoints",
		Seed:                  42,
	}
}

// FromMap decodes a generic hyperparameter map onto the defaults and
// validates the result.
func FromMap(m map[string]any) (*Config, error) {
	cfg := Default()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads a JSON hyperparameter file.
func FromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return FromMap(m)
}

// Validate checks every enum and cadence field, so a bad configuration
// surfaces at construction rather than mid-run.
func (c *Config) Validate() error {
	switch c.ModelType {
	case "encoder_decoder", "encoder":
	default:
		return fmt.Errorf("invalid model_type %q: supported values are \"encoder_decoder\" and \"encoder\"", c.ModelType)
	}

	switch c.Scheduler {
	case "", "none", "linear", "cosine":
	default:
		return fmt.Errorf("invalid scheduler %q: supported values are \"none\", \"linear\" and \"cosine\"", c.Scheduler)
	}

	switch c.TeacherForceScheduler {
	case "", "none", "linear":
	default:
		return fmt.Errorf("invalid teacher_force_scheduler %q: supported values are \"none\" and \"linear\"", c.TeacherForceScheduler)
	}

	switch c.Optimizer {
	case "sgd", "adamw":
	default:
		return fmt.Errorf("invalid optimizer %q: supported values are \"sgd\" and \"adamw\"", c.Optimizer)
	}

	switch c.Precision {
	case "f32", "f16", "bf16":
	default:
		return fmt.Errorf("invalid precision %q: supported values are \"f32\", \"f16\" and \"bf16\"", c.Precision)
	}

	switch c.MixedPrecision {
	case "", "no", "fp16", "bf16":
	default:
		return fmt.Errorf("invalid mixed_precision %q: supported values are \"no\", \"fp16\" and \"bf16\"", c.MixedPrecision)
	}

	if c.GradientClip < 0 {
		return fmt.Errorf("gradient_clip must be positive or zero, got %v", c.GradientClip)
	}
	for name, v := range map[string]int{
		"accumulation_steps":  c.AccumulationSteps,
		"log_interval":        c.LogInterval,
		"checkpoint_interval": c.CheckpointInterval,
		"num_epochs":          c.NumEpochs,
		"batch_size":          c.BatchSize,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %d", name, v)
		}
	}

	return nil
}

// ValidationBatchSize falls back to the training batch size when no
// separate validation size is configured.
func (c *Config) ValidationBatchSize() int {
	if c.ValBatchSize > 0 {
		return c.ValBatchSize
	}
	return c.BatchSize
}
