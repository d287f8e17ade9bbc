// Package seed implements the frozen Seed specification and its evolvable
// ontology (spec §3, §4.3). A Seed is constructed once from an external
// interview collaborator and never mutated; any later attempt to change it
// fails with ErrValidation. The ontology evolves only by appending consensus-
// authorized OntologyEvents on top of the Seed's base schema.
package seed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxAmbiguityScore is the gate below which a Seed may be created (§4.3).
const MaxAmbiguityScore = 0.2

// ErrValidation is returned when a Seed fails construction-time validation,
// including any attempt to mutate an already-frozen Seed.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string { return "seed: validation error: " + e.Reason }

// EvaluationPrinciple is a named, weighted evaluation criterion.
type EvaluationPrinciple struct {
	Name        string  `yaml:"name" json:"name" validate:"required"`
	Description string  `yaml:"description" json:"description"`
	Weight      float64 `yaml:"weight" json:"weight" validate:"gte=0,lte=1"`
}

// OntologyField describes one field of the ontology schema.
type OntologyField struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Type        string `yaml:"type" json:"type" validate:"required,oneof=string number boolean array object"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

// OntologySchema is a named mapping of concept -> field definition.
type OntologySchema struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Fields      []OntologyField `yaml:"fields" json:"fields"`
}

// Metadata carries the Seed's provenance.
type Metadata struct {
	AmbiguityScore    float64   `yaml:"ambiguity_score" json:"ambiguity_score" validate:"gte=0,lte=1"`
	CreatedAt         time.Time `yaml:"created_at" json:"created_at"`
	Version           string    `yaml:"version" json:"version"`
	ContextReferences []string  `yaml:"context_references" json:"context_references,omitempty"`
}

// Seed is the immutable specification that drives one lineage. It is
// constructed once via New and never mutated thereafter; Hash is stable for
// the lifetime of the value.
type Seed struct {
	id                   string
	goal                 string
	constraints          []string
	acceptanceCriteria   []string
	ontologySchema       OntologySchema
	evaluationPrinciples []EvaluationPrinciple
	exitConditions       []string
	metadata             Metadata
	frozen               bool
}

// rawSeed is the YAML/JSON wire shape (spec §6 Seed file format).
type rawSeed struct {
	Goal                 string                `yaml:"goal" validate:"required"`
	Constraints          []string              `yaml:"constraints"`
	AcceptanceCriteria   []string              `yaml:"acceptance_criteria" validate:"required,min=1"`
	OntologySchema       OntologySchema        `yaml:"ontology_schema"`
	EvaluationPrinciples []EvaluationPrinciple `yaml:"evaluation_principles"`
	ExitConditions       []string              `yaml:"exit_conditions"`
	Metadata             Metadata              `yaml:"metadata"`
}

var validate = validator.New()

// New constructs a frozen Seed from raw interview output. It fails with
// ErrValidation if ambiguity_score exceeds MaxAmbiguityScore, or if any
// structural field is malformed.
func New(id string, raw rawSeedInput) (*Seed, error) {
	r := rawSeed(raw)
	if err := validate.Struct(&r); err != nil {
		return nil, &ErrValidation{Reason: err.Error()}
	}
	if r.Metadata.AmbiguityScore > MaxAmbiguityScore {
		return nil, &ErrValidation{Reason: fmt.Sprintf(
			"ambiguity_score %.5f exceeds gate %.2f", r.Metadata.AmbiguityScore, MaxAmbiguityScore)}
	}
	if r.Metadata.CreatedAt.IsZero() {
		r.Metadata.CreatedAt = time.Now().UTC()
	}

	s := &Seed{
		id:                   id,
		goal:                 r.Goal,
		constraints:          append([]string(nil), r.Constraints...),
		acceptanceCriteria:   append([]string(nil), r.AcceptanceCriteria...),
		ontologySchema:       r.OntologySchema,
		evaluationPrinciples: append([]EvaluationPrinciple(nil), r.EvaluationPrinciples...),
		exitConditions:       append([]string(nil), r.ExitConditions...),
		metadata:             r.Metadata,
		frozen:               true,
	}
	return s, nil
}

// rawSeedInput is an alias used to keep the New() constructor signature
// independent of the YAML tag set, so callers can build it from parsed YAML
// or programmatically.
type rawSeedInput rawSeed

// LoadYAML parses a Seed from YAML bytes (spec §6 Seed file format) subject
// to the security size cap passed by the caller (§4.11); the cap itself is
// enforced by the security package before this function is reached.
func LoadYAML(id string, data []byte) (*Seed, error) {
	var r rawSeed
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &ErrValidation{Reason: "invalid YAML: " + err.Error()}
	}
	return New(id, rawSeedInput(r))
}

// ID returns the Seed's identifier.
func (s *Seed) ID() string { return s.id }

// Goal returns the Seed's goal string.
func (s *Seed) Goal() string { return s.goal }

// Constraints returns the ordered constraint sequence (read-only copy).
func (s *Seed) Constraints() []string { return append([]string(nil), s.constraints...) }

// AcceptanceCriteria returns the ordered, flat AC text sequence used to seed
// the AC tree's roots (the tree structure itself is built by the executor).
func (s *Seed) AcceptanceCriteria() []string {
	return append([]string(nil), s.acceptanceCriteria...)
}

// OntologySchema returns the base ontology schema.
func (s *Seed) OntologySchema() OntologySchema { return s.ontologySchema }

// EvaluationPrinciples returns the ordered, weighted evaluation principles.
func (s *Seed) EvaluationPrinciples() []EvaluationPrinciple {
	return append([]EvaluationPrinciple(nil), s.evaluationPrinciples...)
}

// ExitConditions returns the ordered exit condition sequence.
func (s *Seed) ExitConditions() []string { return append([]string(nil), s.exitConditions...) }

// Metadata returns the Seed's provenance metadata.
func (s *Seed) Metadata() Metadata { return s.metadata }

// Hash returns the SHA-256 hex digest of the Seed's canonical JSON form. Any
// derived structure claiming to be "the Seed" must hash-equal this value.
func (s *Seed) Hash() (string, error) {
	canonical, err := json.Marshal(struct {
		ID                   string                `json:"id"`
		Goal                 string                `json:"goal"`
		Constraints          []string              `json:"constraints"`
		AcceptanceCriteria   []string              `json:"acceptance_criteria"`
		OntologySchema       OntologySchema        `json:"ontology_schema"`
		EvaluationPrinciples []EvaluationPrinciple `json:"evaluation_principles"`
		ExitConditions       []string              `json:"exit_conditions"`
		Metadata             Metadata              `json:"metadata"`
	}{
		ID: s.id, Goal: s.goal, Constraints: s.constraints,
		AcceptanceCriteria: s.acceptanceCriteria, OntologySchema: s.ontologySchema,
		EvaluationPrinciples: s.evaluationPrinciples, ExitConditions: s.exitConditions,
		Metadata: s.metadata,
	})
	if err != nil {
		return "", fmt.Errorf("seed: failed to canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash panics if Hash fails; Seed is validated at construction time so
// this should never occur for a Seed built through New or LoadYAML.
func (s *Seed) MustHash() string {
	h, err := s.Hash()
	if err != nil {
		panic(err)
	}
	return h
}
