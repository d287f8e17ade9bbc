// Package config loads and validates the configuration surface recognized by
// the evolutionary engine core (spec §6). All values have documented
// defaults; the YAML loader never mutates a Seed — configuration is process
// tuning, not specification content.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for the engine core.
type Config struct {
	Router     RouterConfig     `yaml:"router"`
	Atomicity  AtomicityConfig  `yaml:"atomicity"`
	ACTree     ACTreeConfig     `yaml:"ac_tree"`
	Stagnation StagnationConfig `yaml:"stagnation"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Drift      DriftConfig      `yaml:"drift"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Context    ContextConfig    `yaml:"context"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RouterConfig configures the PAL tier router (§4.4).
type RouterConfig struct {
	Thresholds [2]float64         `yaml:"thresholds" validate:"len=2"`
	Weights    RouterWeightConfig `yaml:"weights"`
}

// RouterWeightConfig is the complexity-score weighting triple; must sum to 1.0.
type RouterWeightConfig struct {
	Tokens float64 `yaml:"tokens"`
	Tools  float64 `yaml:"tools"`
	Depth  float64 `yaml:"depth"`
}

// AtomicityConfig configures the Define-phase atomicity gate (§4.5).
type AtomicityConfig struct {
	Complexity float64 `yaml:"complexity"`
	ToolCount  int     `yaml:"tool_count"`
	DurationS  int     `yaml:"duration_s"`
}

// ACTreeConfig configures AC-tree shape limits (§4.5).
type ACTreeConfig struct {
	MaxDepth         int `yaml:"max_depth"`
	CompressionDepth int `yaml:"compression_depth"`
}

// StagnationConfig configures detector thresholds (§4.6).
type StagnationConfig struct {
	Spinning           int `yaml:"spinning"`
	Oscillation        int `yaml:"oscillation"`
	NoDrift            int `yaml:"no_drift"`
	DiminishingReturns int `yaml:"diminishing"`
}

// EvaluationConfig configures the three-stage pipeline (§4.7).
type EvaluationConfig struct {
	Mechanical MechanicalConfig `yaml:"mechanical"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Consensus  ConsensusConfig  `yaml:"consensus"`
}

// MechanicalConfig configures Stage 1.
type MechanicalConfig struct {
	CoverageMin float64 `yaml:"coverage_min"`
}

// SemanticConfig configures Stage 2 pass thresholds.
type SemanticConfig struct {
	Pass        float64 `yaml:"pass"`
	Goal        float64 `yaml:"goal"`
	Drift       float64 `yaml:"drift"`
	Uncertainty float64 `yaml:"uncertainty"`
}

// ConsensusConfig configures Stage 3 quorum.
type ConsensusConfig struct {
	QuorumNumerator   int `yaml:"quorum_numerator"`
	QuorumDenominator int `yaml:"quorum_denominator"`
}

// DriftConfig configures drift weighting and retrospective cadence (§4.8).
type DriftConfig struct {
	Weights            DriftWeightConfig `yaml:"weights"`
	Threshold          float64           `yaml:"threshold"`
	RetrospectiveEvery int               `yaml:"retrospective_every"`
}

// DriftWeightConfig is the goal/constraint/ontology drift weighting triple.
type DriftWeightConfig struct {
	Goal       float64 `yaml:"goal"`
	Constraint float64 `yaml:"constraint"`
	Ontology   float64 `yaml:"ontology"`
}

// EvolutionConfig configures the generation loop (§4.9).
type EvolutionConfig struct {
	MaxGenerations        int     `yaml:"max_generations"`
	ConvergenceSimilarity float64 `yaml:"convergence_similarity"`
	MaxRetries            int     `yaml:"max_retries"`
}

// ContextConfig configures the context compressor (§4.10).
type ContextConfig struct {
	MaxTokens     int     `yaml:"max_tokens"`
	MaxAgeHours   float64 `yaml:"max_age_h"`
	RecentHistory int     `yaml:"recent_history"`
}

// CheckpointConfig configures snapshot cadence and rollback depth (§4.2).
type CheckpointConfig struct {
	IntervalSeconds int `yaml:"interval_s"`
	MaxRollback     int `yaml:"max_rollback"`
}

// SecurityConfig configures size caps (§4.11).
type SecurityConfig struct {
	MaxInitialContextBytes int `yaml:"max_initial_ctx"`
	MaxResponseBytes       int `yaml:"max_response"`
	MaxSeedBytes           int `yaml:"max_seed"`
	MaxLLMResponseBytes    int `yaml:"max_llm_resp"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
}

// Default returns the documented default configuration (spec §6).
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Thresholds: [2]float64{0.4, 0.7},
			Weights:    RouterWeightConfig{Tokens: 0.3, Tools: 0.3, Depth: 0.4},
		},
		Atomicity: AtomicityConfig{Complexity: 0.7, ToolCount: 3, DurationS: 300},
		ACTree:    ACTreeConfig{MaxDepth: 5, CompressionDepth: 3},
		Stagnation: StagnationConfig{
			Spinning: 3, Oscillation: 2, NoDrift: 5, DiminishingReturns: 3,
		},
		Evaluation: EvaluationConfig{
			Mechanical: MechanicalConfig{CoverageMin: 0.7},
			Semantic:   SemanticConfig{Pass: 0.8, Goal: 0.7, Drift: 0.3, Uncertainty: 0.3},
			Consensus:  ConsensusConfig{QuorumNumerator: 2, QuorumDenominator: 3},
		},
		Drift: DriftConfig{
			Weights:            DriftWeightConfig{Goal: 0.5, Constraint: 0.3, Ontology: 0.2},
			Threshold:          0.3,
			RetrospectiveEvery: 3,
		},
		Evolution: EvolutionConfig{
			MaxGenerations:        30,
			ConvergenceSimilarity: 0.95,
			MaxRetries:            2,
		},
		Context: ContextConfig{
			MaxTokens:     100_000,
			MaxAgeHours:   6,
			RecentHistory: 3,
		},
		Checkpoint: CheckpointConfig{IntervalSeconds: 300, MaxRollback: 3},
		Security: SecurityConfig{
			MaxInitialContextBytes: 50 * 1024,
			MaxResponseBytes:       10 * 1024,
			MaxSeedBytes:           1024 * 1024,
			MaxLLMResponseBytes:    100 * 1024,
		},
		Logging: LoggingConfig{DebugMode: false, Level: "info"},
	}
}

var validate = validator.New()

// Load reads a YAML config file, merges it over the defaults, and validates
// the result. A missing file is not an error: defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks structural constraints that struct tags cannot express:
// the router and drift weight triples must each sum to 1.0, and the router
// thresholds must be ordered.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Router.Thresholds[0] >= c.Router.Thresholds[1] {
		return fmt.Errorf("router.thresholds must be strictly increasing, got %v", c.Router.Thresholds)
	}
	if sum := c.Router.Weights.Tokens + c.Router.Weights.Tools + c.Router.Weights.Depth; !approxOne(sum) {
		return fmt.Errorf("router.weights must sum to 1.0, got %f", sum)
	}
	if sum := c.Drift.Weights.Goal + c.Drift.Weights.Constraint + c.Drift.Weights.Ontology; !approxOne(sum) {
		return fmt.Errorf("drift.weights must sum to 1.0, got %f", sum)
	}
	if c.Evaluation.Consensus.QuorumDenominator == 0 {
		return fmt.Errorf("evaluation.consensus.quorum_denominator must be nonzero")
	}
	return nil
}

func approxOne(v float64) bool {
	const eps = 1e-9
	return v > 1-eps && v < 1+eps
}
