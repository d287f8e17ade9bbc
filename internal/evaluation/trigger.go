package evaluation

// TriggerInputs is the six-condition matrix that decides whether Stage 3
// consensus fires (spec §4.7).
type TriggerInputs struct {
	SeedModificationProposed bool
	OntologyEvolution        bool
	GoalReinterpretation     bool
	Drift                    float64
	Stage2Uncertainty        float64
	LateralSuggestionAdopted bool
}

// DriftTriggerThreshold and UncertaintyTriggerThreshold are the two
// numeric rows of the trigger matrix (spec §4.7 rows 4-5).
const (
	DriftTriggerThreshold       = 0.3
	UncertaintyTriggerThreshold = 0.3
)

// ShouldTriggerConsensus reports whether any of the six trigger-matrix
// conditions holds.
func ShouldTriggerConsensus(in TriggerInputs) bool {
	return in.SeedModificationProposed ||
		in.OntologyEvolution ||
		in.GoalReinterpretation ||
		in.Drift > DriftTriggerThreshold ||
		in.Stage2Uncertainty > UncertaintyTriggerThreshold ||
		in.LateralSuggestionAdopted
}
