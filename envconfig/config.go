// Package envconfig applies CONVQA_* environment overrides. The variables
// cover operational knobs that should not live in the hyperparameter file:
// debug logging, progress rendering, and filesystem locations.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via CONVQA_DEBUG in the environment
	Debug bool
	// Set via CONVQA_NOPROGRESS in the environment
	NoProgress bool
	// Set via CONVQA_CHECKPOINTS in the environment
	CheckpointDir string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CONVQA_DEBUG":       {"CONVQA_DEBUG", Debug, "Show additional debug information (e.g. CONVQA_DEBUG=1)"},
		"CONVQA_NOPROGRESS":  {"CONVQA_NOPROGRESS", NoProgress, "Disable the training progress bar"},
		"CONVQA_CHECKPOINTS": {"CONVQA_CHECKPOINTS", CheckpointDir, "Override the checkpoint directory"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	if debug := clean("CONVQA_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if np := clean("CONVQA_NOPROGRESS"); np != "" {
		d, err := strconv.ParseBool(np)
		if err == nil {
			NoProgress = d
		}
	}

	CheckpointDir = clean("CONVQA_CHECKPOINTS")
}
