package seed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() rawSeedInput {
	return rawSeedInput{
		Goal:               "print hello",
		Constraints:        []string{"no external deps"},
		AcceptanceCriteria: []string{"prints hello to stdout"},
		OntologySchema: OntologySchema{
			Name: "hello", Fields: []OntologyField{{Name: "output", Type: "string", Required: true}},
		},
		EvaluationPrinciples: []EvaluationPrinciple{{Name: "correctness", Weight: 1.0}},
		ExitConditions:       []string{"output matches expected"},
		Metadata:             Metadata{AmbiguityScore: 0.15, CreatedAt: time.Now().UTC(), Version: "1"},
	}
}

func TestNew_AmbiguityGate(t *testing.T) {
	raw := validRaw()
	raw.Metadata.AmbiguityScore = 0.2
	_, err := New("s1", raw)
	require.NoError(t, err, "0.2 exactly must pass the gate")

	raw.Metadata.AmbiguityScore = 0.20001
	_, err = New("s1", raw)
	require.Error(t, err, "above 0.2 must block creation")
	var verr *ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestNew_RequiresGoalAndAC(t *testing.T) {
	raw := validRaw()
	raw.Goal = ""
	_, err := New("s1", raw)
	assert.Error(t, err)

	raw = validRaw()
	raw.AcceptanceCriteria = nil
	_, err = New("s1", raw)
	assert.Error(t, err)
}

func TestHash_StableAndDeterministic(t *testing.T) {
	s, err := New("s1", validRaw())
	require.NoError(t, err)

	h1, err := s.Hash()
	require.NoError(t, err)
	h2, err := s.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DiffersOnContent(t *testing.T) {
	s1, _ := New("s1", validRaw())
	raw2 := validRaw()
	raw2.Goal = "print goodbye"
	s2, _ := New("s1", raw2)

	h1, _ := s1.Hash()
	h2, _ := s2.Hash()
	assert.NotEqual(t, h1, h2)
}

func TestLoadYAML_RoundTrip(t *testing.T) {
	yamlDoc := []byte(`
goal: "print hello"
constraints:
  - "no external deps"
acceptance_criteria:
  - "prints hello to stdout"
ontology_schema:
  name: hello
  fields:
    - name: output
      type: string
      required: true
evaluation_principles:
  - name: correctness
    weight: 1.0
exit_conditions:
  - "output matches expected"
metadata:
  ambiguity_score: 0.1
  version: "1"
`)
	s, err := LoadYAML("s1", yamlDoc)
	require.NoError(t, err)
	assert.Equal(t, "print hello", s.Goal())
	assert.Equal(t, []string{"prints hello to stdout"}, s.AcceptanceCriteria())
}
