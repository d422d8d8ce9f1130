package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starweave/internal/concepts"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"WEAVE_EMBEDDING_PROVIDER", "OLLAMA_HOST", "GEMINI_API_KEY", "WEAVE_DB", "WEAVE_SEED"} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "starweave", cfg.Name)
	assert.Len(t, cfg.Concepts, 3)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 0.3, cfg.Orchestrator.Propensity)
	assert.Equal(t, 5, cfg.Evolution.ReflectionInterval)
	assert.False(t, cfg.Store.Enabled)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DirName, "config.yaml")

	cfg := DefaultConfig()
	cfg.Actions.CoCreation = true
	cfg.Evolution.Seed = 42
	cfg.Modules = cfg.Modules[:1]
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Actions.CoCreation)
	assert.Equal(t, int64(42), loaded.Evolution.Seed)
	assert.Len(t, loaded.Modules, 1)
	assert.Equal(t, cfg.Concepts, loaded.Concepts)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  propensity: 0.5\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Orchestrator.Propensity)
	assert.Len(t, cfg.Concepts, 3)
	assert.Equal(t, 100, cfg.Actions.MemoryCapacity)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concepts: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WEAVE_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("WEAVE_DB", "/tmp/weave.db")
	t.Setenv("WEAVE_SEED", "7")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedding.OllamaEndpoint)
	assert.Equal(t, "g-key", cfg.Embedding.GenAIAPIKey)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "/tmp/weave.db", cfg.StorePath("/ignored"))
	assert.Equal(t, int64(7), cfg.Evolution.Seed)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no concepts", func(c *Config) { c.Concepts = nil }},
		{"threshold out of range", func(c *Config) { c.Concepts[0].Threshold = 1.5 }},
		{"curiosity out of range", func(c *Config) { c.Concepts[1].Curiosity = 0 }},
		{"duplicate concept", func(c *Config) { c.Concepts[1].Name = c.Concepts[0].Name }},
		{"embedding dimension mismatch", func(c *Config) { c.Embedding.Dimensions = 768 }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "word2vec" }},
		{"empty module name", func(c *Config) { c.Modules[0].Name = "" }},
		{"duplicate module", func(c *Config) { c.Modules[1].Name = c.Modules[0].Name }},
		{"module without concepts", func(c *Config) { c.Modules[0].Concepts = nil }},
		{"module with unknown concept", func(c *Config) { c.Modules[0].Concepts = []string{"Humor"} }},
		{"propensity too high", func(c *Config) { c.Orchestrator.Propensity = 0.95 }},
		{"no prompts", func(c *Config) { c.Orchestrator.Prompts = nil }},
		{"zero memory", func(c *Config) { c.Actions.MemoryCapacity = 0 }},
		{"zero reflection interval", func(c *Config) { c.Evolution.ReflectionInterval = 0 }},
		{"store without path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, concepts.ErrConfiguration)
		})
	}
}

func TestBuildConcepts(t *testing.T) {
	cfg := DefaultConfig()
	built, err := cfg.BuildConcepts(1234)
	require.NoError(t, err)
	require.Len(t, built, 3)

	assert.Equal(t, [2]float64{1, 0}, built[0].State)
	assert.Equal(t, int64(1234), built[0].LastInteraction)

	built[0].Vector[0] = 99
	assert.Equal(t, float32(0.9), cfg.Concepts[0].Vector[0], "built vectors are copies")
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/ws", DirName, "weave.db"), cfg.StorePath("/ws"))
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.False(t, lc.IsCategoryEnabled("store"))

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("store"))

	lc.Categories = map[string]bool{"store": false}
	assert.False(t, lc.IsCategoryEnabled("store"))
	assert.True(t, lc.IsCategoryEnabled("concepts"))
}

func TestFindWorkspaceRoot_PrefersWeaveDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	origWD, _ := os.Getwd()
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	got, err := FindWorkspaceRoot()
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	assert.Equal(t, want, gotResolved)
}
