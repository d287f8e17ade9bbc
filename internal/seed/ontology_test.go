package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveOntology_AppendRequiresConsensus(t *testing.T) {
	o := NewEffectiveOntology(OntologySchema{})
	err := o.Append(OntologyEvent{Type: ConceptAdded, Concept: "risk"})
	assert.Error(t, err)
}

func TestEffectiveOntology_ReplaySemantics(t *testing.T) {
	base := OntologySchema{Fields: []OntologyField{{Name: "goal", Type: "string"}}}
	o := NewEffectiveOntology(base)

	require.NoError(t, o.Append(OntologyEvent{
		Type: ConceptAdded, ConsensusID: "c1", Concept: "risk",
		Field: OntologyField{Name: "risk", Type: "string"},
	}))
	require.NoError(t, o.Append(OntologyEvent{
		Type: WeightModified, ConsensusID: "c2", Concept: "risk", Weight: 0.5,
	}))

	assert.ElementsMatch(t, []string{"goal", "risk"}, o.Concepts())
	assert.Equal(t, 0.5, o.Weight("risk"))

	require.NoError(t, o.Append(OntologyEvent{Type: ExcludeAdded, ConsensusID: "c3", Concept: "risk"}))
	assert.ElementsMatch(t, []string{"goal"}, o.Concepts())
	assert.Equal(t, float64(0), o.Weight("risk"))
}

func TestEffectiveOntology_ConceptRemoved(t *testing.T) {
	base := OntologySchema{Fields: []OntologyField{{Name: "a"}, {Name: "b"}}}
	o := NewEffectiveOntology(base)
	require.NoError(t, o.Append(OntologyEvent{Type: ConceptRemoved, ConsensusID: "c1", Concept: "a"}))
	assert.ElementsMatch(t, []string{"b"}, o.Concepts())
}
