// Package config loads and validates the starweave configuration from
// .weave/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"starweave/internal/actions"
	"starweave/internal/concepts"
	"starweave/internal/embedding"
	"starweave/internal/evolution"
	"starweave/internal/orchestrator"
)

// DirName is the per-workspace configuration directory.
const DirName = ".weave"

// Config holds all starweave configuration.
type Config struct {
	Name string `yaml:"name"`

	// Concept catalog shared by the global registry and the modules
	Concepts []ConceptConfig `yaml:"concepts"`

	// Module agents, each holding a subset of the catalog
	Modules []ModuleConfig `yaml:"modules"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Actions      ActionsConfig      `yaml:"actions"`
	Evolution    EvolutionConfig    `yaml:"evolution"`
	Embedding    embedding.Config   `yaml:"embedding"`
	Store        StoreConfig        `yaml:"store"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ConceptConfig defines one concept of the catalog.
type ConceptConfig struct {
	Name      string    `yaml:"name"`
	Vector    []float32 `yaml:"vector"`
	Threshold float64   `yaml:"threshold"`
	Curiosity float64   `yaml:"curiosity"`
}

// ModuleConfig names a module and the catalog concepts it owns.
type ModuleConfig struct {
	Name     string   `yaml:"name"`
	Concepts []string `yaml:"concepts"`
}

// OrchestratorConfig configures routing and co-creation.
type OrchestratorConfig struct {
	Propensity  float64  `yaml:"propensity"`
	Prompts     []string `yaml:"prompts"`
	Parallelism int      `yaml:"parallelism"` // 0 = GOMAXPROCS
}

// ActionsConfig configures the dispatcher.
type ActionsConfig struct {
	MemoryCapacity int  `yaml:"memory_capacity"`
	LogCapacity    int  `yaml:"log_capacity"`
	CoCreation     bool `yaml:"co_creation"`
}

// EvolutionConfig configures state drift and reflection.
type EvolutionConfig struct {
	ReflectionInterval int   `yaml:"reflection_interval"`
	Seed               int64 `yaml:"seed"` // 0 = time-seeded
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	Autosave bool   `yaml:"autosave"` // save after every processed input
}

// DefaultConfig returns the default configuration: the stock concept
// catalog, one module led by each concept, and the local embedder.
func DefaultConfig() *Config {
	catalog := concepts.DefaultCatalog(0)
	cc := make([]ConceptConfig, len(catalog))
	for i, c := range catalog {
		cc[i] = ConceptConfig{Name: c.Name, Vector: c.Vector, Threshold: c.Threshold, Curiosity: c.CuriosityScore}
	}

	return &Config{
		Name:     "starweave",
		Concepts: cc,
		Modules: []ModuleConfig{
			{Name: "Curiosity", Concepts: []string{"Curiosity", "Aesthetics"}},
			{Name: "Aesthetics", Concepts: []string{"Aesthetics", "Verification"}},
			{Name: "Verification", Concepts: []string{"Verification", "Curiosity"}},
		},
		Orchestrator: OrchestratorConfig{
			Propensity: orchestrator.DefaultPropensity,
			Prompts:    append([]string(nil), orchestrator.DefaultPrompts...),
		},
		Actions: ActionsConfig{
			MemoryCapacity: actions.DefaultMemoryCapacity,
			LogCapacity:    actions.DefaultLogCapacity,
		},
		Evolution: EvolutionConfig{
			ReflectionInterval: evolution.DefaultReflectionInterval,
		},
		Embedding: embedding.DefaultConfig(),
		Store: StoreConfig{
			Path: filepath.Join(DirName, "weave.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config file location inside workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("WEAVE_EMBEDDING_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}

	// Database path from environment enables persistence
	if path := os.Getenv("WEAVE_DB"); path != "" {
		c.Store.Path = path
		c.Store.Enabled = true
	}

	if seed := os.Getenv("WEAVE_SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Evolution.Seed = n
		}
	}
}

// ValidProviders lists the supported embedding providers.
var ValidProviders = []string{"local", "ollama", "genai"}

// Validate checks the configuration and fails fast with
// concepts.ErrConfiguration.
func (c *Config) Validate() error {
	catalog, err := c.BuildConcepts(0)
	if err != nil {
		return err
	}
	registry, err := concepts.NewRegistry(catalog)
	if err != nil {
		return err
	}

	if c.Embedding.Dimensions != registry.Dimensions() {
		return fmt.Errorf("%w: embedding dimensions %d do not match concept dimension %d",
			concepts.ErrConfiguration, c.Embedding.Dimensions, registry.Dimensions())
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("%w: invalid embedding provider: %s (valid: %v)",
			concepts.ErrConfiguration, c.Embedding.Provider, ValidProviders)
	}

	seen := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if m.Name == "" {
			return fmt.Errorf("%w: module name is empty", concepts.ErrConfiguration)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate module name %q", concepts.ErrConfiguration, m.Name)
		}
		seen[m.Name] = true
		if len(m.Concepts) == 0 {
			return fmt.Errorf("%w: module %q has no concepts", concepts.ErrConfiguration, m.Name)
		}
		if _, err := registry.Subset(m.Concepts); err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}
	}

	if p := c.Orchestrator.Propensity; p < 0 || p > orchestrator.MaxPropensity {
		return fmt.Errorf("%w: propensity %v outside [0, %v]", concepts.ErrConfiguration, p, orchestrator.MaxPropensity)
	}
	if len(c.Orchestrator.Prompts) == 0 {
		return fmt.Errorf("%w: at least one proactive prompt is required", concepts.ErrConfiguration)
	}
	if c.Actions.MemoryCapacity <= 0 || c.Actions.LogCapacity <= 0 {
		return fmt.Errorf("%w: memory and log capacities must be positive", concepts.ErrConfiguration)
	}
	if c.Evolution.ReflectionInterval <= 0 {
		return fmt.Errorf("%w: reflection interval must be positive", concepts.ErrConfiguration)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("%w: store enabled without a path", concepts.ErrConfiguration)
	}

	return nil
}

// BuildConcepts turns the catalog into concept vectors with the initial
// state [1, 0] and the given interaction time.
func (c *Config) BuildConcepts(now int64) ([]concepts.ConceptVector, error) {
	if len(c.Concepts) == 0 {
		return nil, fmt.Errorf("%w: no concepts configured", concepts.ErrConfiguration)
	}

	out := make([]concepts.ConceptVector, len(c.Concepts))
	for i, cc := range c.Concepts {
		out[i] = concepts.ConceptVector{
			Name:            cc.Name,
			Vector:          append([]float32(nil), cc.Vector...),
			State:           [2]float64{concepts.MaxState, concepts.MinState},
			Threshold:       cc.Threshold,
			LastInteraction: now,
			CuriosityScore:  cc.Curiosity,
		}
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StorePath resolves the snapshot path against workspace.
func (c *Config) StorePath(workspace string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(workspace, c.Store.Path)
}

// FindWorkspaceRoot walks up from the working directory to the first
// directory holding a .weave folder. Falls back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}
