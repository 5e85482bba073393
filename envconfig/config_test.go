package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("CONVQA_DEBUG", "1")
	t.Setenv("CONVQA_NOPROGRESS", "true")
	t.Setenv("CONVQA_CHECKPOINTS", "/tmp/ckpts")
	LoadConfig()

	assert.True(t, Debug)
	assert.True(t, NoProgress)
	assert.Equal(t, "/tmp/ckpts", CheckpointDir)
}

func TestLoadConfigCleansQuotes(t *testing.T) {
	t.Setenv("CONVQA_CHECKPOINTS", `"/var/checkpoints"`)
	LoadConfig()
	assert.Equal(t, "/var/checkpoints", CheckpointDir)
}

func TestLoadConfigInvalidBoolMeansDebug(t *testing.T) {
	t.Setenv("CONVQA_DEBUG", "yes please")
	LoadConfig()
	assert.True(t, Debug)
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	assert.Contains(t, m, "CONVQA_DEBUG")
	assert.Contains(t, m, "CONVQA_NOPROGRESS")
	assert.Contains(t, m, "CONVQA_CHECKPOINTS")
	assert.Len(t, m, 3)
}
