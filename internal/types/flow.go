package types

// Step is a stage of the guided composition flow.
type Step string

const (
	StepInitial                Step = "initial"
	StepHeroScaffolding        Step = "hero-scaffolding"
	StepAwaitingDisambiguation Step = "awaiting-disambiguation"
	StepHeroCreated            Step = "hero-created"
	StepContentModelCreated    Step = "content-model-created"
	StepContentGenerated       Step = "content-generated"
	StepContentPersisted       Step = "content-persisted"
	StepComplete               Step = "complete"
)

// Steps lists every step in flow order.
var Steps = []Step{
	StepInitial,
	StepHeroScaffolding,
	StepAwaitingDisambiguation,
	StepHeroCreated,
	StepContentModelCreated,
	StepContentGenerated,
	StepContentPersisted,
	StepComplete,
}

func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// ConversationState is the current position of a session in the guided flow.
type ConversationState struct {
	Step           Step           `json:"step"`
	Context        map[string]any `json:"context,omitempty"`
	PendingActions []string       `json:"pending_actions,omitempty"`
}
