package resolver

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, cfg.MinScore())
	assert.Equal(t, 16, cfg.QueueSize)
	assert.Equal(t, 128, cfg.Embedder.MaxSeqLen)
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	cfg := Config{
		CorpusPath: "commands.yaml",
		Embedder: EmbedderConfig{
			ModelPath: "models/model.onnx",
			CacheDir:  filepath.Join(dir, "cache"),
		},
		Assets: AssetsConfig{ModelURL: "https://example.invalid/model.onnx"},
	}
	cfg.SetThreshold(0.8)
	require.NoError(t, SaveConfig(path, cfg))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, loaded.MinScore(), 1e-6)
	assert.Equal(t, "commands.yaml", loaded.CorpusPath)
	assert.Equal(t, "models/model.onnx", loaded.Embedder.ModelPath)
	assert.Equal(t, "https://example.invalid/model.onnx", loaded.Assets.ModelURL)
	assert.DirExists(t, loaded.Embedder.CacheDir)
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvThreshold, "0.9")
	t.Setenv(EnvQueueSize, "4")
	t.Setenv(EnvModelPath, "/opt/models/e5.onnx")
	t.Setenv(EnvTokenizer, "hf")
	t.Setenv(EnvCorpusPath, "obd.json")

	var cfg Config
	require.NoError(t, cfg.ApplyEnv())
	assert.InDelta(t, 0.9, cfg.MinScore(), 1e-6)
	assert.Equal(t, 4, cfg.QueueSize)
	assert.Equal(t, "/opt/models/e5.onnx", cfg.Embedder.ModelPath)
	assert.Equal(t, "hf", cfg.Embedder.Tokenizer)
	assert.Equal(t, "obd.json", cfg.CorpusPath)

	t.Setenv(EnvMaxSeqLen, "lots")
	require.Error(t, cfg.ApplyEnv())
}

func TestApplyEnvRejectsNonFiniteThreshold(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "+Inf", "-inf"} {
		t.Setenv(EnvThreshold, raw)
		var cfg Config
		require.Error(t, cfg.ApplyEnv(), raw)
		assert.Nil(t, cfg.Threshold, raw)
	}
}

func TestLoadConfigKeepsExplicitZeroThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"threshold": 0}`), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Threshold)
	assert.Equal(t, float32(0), cfg.MinScore())
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.WriteFile(path, []byte(`{"queueSize": 2}`), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, cfg.MinScore())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(EnvCacheDir+"=/tmp/obd-cache\n"), 0o644))
	t.Setenv(EnvCacheDir, "")
	os.Unsetenv(EnvCacheDir)

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	var cfg Config
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/tmp/obd-cache", cfg.Embedder.CacheDir)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	for _, bad := range []float32{-1.5, 1.01, float32(math.NaN()), float32(math.Inf(1))} {
		cfg.SetThreshold(bad)
		require.Error(t, cfg.Validate(), "threshold %v", bad)
	}

	cfg.SetThreshold(-1)
	require.NoError(t, cfg.Validate())

	cfg.SetThreshold(0.5)
	cfg.QueueSize = -1
	require.Error(t, cfg.Validate())
}

func TestConfigCloneIsIndependent(t *testing.T) {
	cfg := Config{Embedder: EmbedderConfig{ModelID: "a"}}
	cfg.SetThreshold(0.7)
	clone := cfg.Clone()
	clone.Embedder.ModelID = "b"
	*clone.Threshold = 0.1
	assert.Equal(t, "a", cfg.Embedder.ModelID)
	assert.Equal(t, float32(0.7), cfg.MinScore())

	cfg.SetThreshold(float32(math.NaN()))
	assert.True(t, math.IsNaN(float64(cfg.Clone().MinScore())))
}
