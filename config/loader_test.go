// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 引擎默认值
	assert.Equal(t, 50, cfg.Engine.MaxIterations)
	assert.Equal(t, 0, cfg.Engine.MaxParallelism)

	// 流水线默认值
	assert.Equal(t, 2, cfg.Pipeline.RevisionCeiling)
	assert.Equal(t, DecodeLenient, cfg.Pipeline.DecodeMode)
	assert.Equal(t, 8000, cfg.Pipeline.MaxContentChars)
	assert.Equal(t, 6000, cfg.Pipeline.WriterContentChars)
	assert.Equal(t, 5, cfg.Pipeline.CircuitBreaker.FailureThreshold)

	// 日志 / 遥测 / 指标默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "flowstate", cfg.Telemetry.ServiceName)
	assert.Equal(t, "flowstate", cfg.Metrics.Namespace)

	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.Engine.MaxIterations)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "flowstate.yaml")
	yamlContent := `
engine:
  max_iterations: 20
  max_parallelism: 2

pipeline:
  revision_ceiling: 1
  decode_mode: strict
  stage_timeout: 45s
  rate_limit_rps: 2.5
  rate_limit_burst: 3
  circuit_breaker:
    failure_threshold: 7
    recovery_timeout: 1m

log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Engine.MaxIterations)
	assert.Equal(t, 2, cfg.Engine.MaxParallelism)
	assert.Equal(t, 1, cfg.Pipeline.RevisionCeiling)
	assert.Equal(t, DecodeStrict, cfg.Pipeline.DecodeMode)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, 2.5, cfg.Pipeline.RateLimitRPS)
	assert.Equal(t, 3, cfg.Pipeline.RateLimitBurst)
	assert.Equal(t, 7, cfg.Pipeline.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Pipeline.CircuitBreaker.RecoveryTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 8000, cfg.Pipeline.MaxContentChars)
}

func TestLoader_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine: [unterminated"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("FLOWSTATE_ENGINE_MAX_ITERATIONS", "12")
	t.Setenv("FLOWSTATE_PIPELINE_DECODE_MODE", "strict")
	t.Setenv("FLOWSTATE_PIPELINE_RETRY_DELAY", "250ms")
	t.Setenv("FLOWSTATE_PIPELINE_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("FLOWSTATE_TELEMETRY_ENABLED", "true")
	t.Setenv("FLOWSTATE_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("FLOWSTATE_LOG_OUTPUT_PATHS", "stdout, /tmp/flowstate.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Engine.MaxIterations)
	assert.Equal(t, DecodeStrict, cfg.Pipeline.DecodeMode)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RetryDelay)
	assert.Equal(t, 9, cfg.Pipeline.CircuitBreaker.FailureThreshold)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/tmp/flowstate.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "flowstate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  max_iterations: 30\n"), 0644))
	t.Setenv("FLOWSTATE_ENGINE_MAX_ITERATIONS", "40")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Engine.MaxIterations)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("FS_ENGINE_MAX_ITERATIONS", "3")

	cfg, err := NewLoader().WithEnvPrefix("FS").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.MaxIterations)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("FLOWSTATE_ENGINE_MAX_ITERATIONS", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWSTATE_ENGINE_MAX_ITERATIONS")
}

func TestLoader_Validator(t *testing.T) {
	t.Setenv("FLOWSTATE_ENGINE_MAX_ITERATIONS", "0")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_iterations must be positive")
}

// --- Validate 测试 ---

func TestConfig_ValidateCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxIterations = 0
	cfg.Pipeline.DecodeMode = "loose"
	cfg.Pipeline.RateLimitRPS = 1
	cfg.Pipeline.RateLimitBurst = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"engine.max_iterations",
		"pipeline.decode_mode",
		"pipeline.rate_limit_burst",
		"log.format",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("FLOWSTATE_PIPELINE_DECODE_MODE", "loose")
	assert.Panics(t, func() {
		MustLoad("")
	})
}
