package compose

import (
	"slices"

	"github.com/user/composablestudio/internal/types"
)

// transitions is the adjacency table of the guided flow. Steps missing from
// the table, and complete, have no successors; a finished session starts
// over with NewConversationState.
var transitions = map[types.Step][]types.Step{
	types.StepInitial:                {types.StepHeroScaffolding},
	types.StepHeroScaffolding:        {types.StepHeroCreated, types.StepAwaitingDisambiguation},
	types.StepAwaitingDisambiguation: {types.StepHeroCreated},
	types.StepHeroCreated:            {types.StepAwaitingDisambiguation, types.StepContentModelCreated, types.StepComplete},
	types.StepContentModelCreated:    {types.StepContentGenerated},
	types.StepContentGenerated:       {types.StepContentGenerated, types.StepContentPersisted},
	types.StepContentPersisted:       {types.StepComplete},
}

func NewConversationState() types.ConversationState {
	return types.ConversationState{Step: types.StepInitial}
}

// AllowedNext returns the steps reachable from step in one advance.
func AllowedNext(step types.Step) []types.Step {
	return slices.Clone(transitions[step])
}

func CanAdvance(from, to types.Step) bool {
	return slices.Contains(transitions[from], to)
}

// AdvanceState moves state to next. The context map is carried over;
// pending actions belong to the step being left and are dropped.
func AdvanceState(state types.ConversationState, next types.Step) (types.ConversationState, error) {
	if !CanAdvance(state.Step, next) {
		return state, &InvalidTransitionError{From: state.Step, To: next}
	}
	return types.ConversationState{
		Step:    next,
		Context: cloneMap(state.Context),
	}, nil
}

// WithContext returns a copy of state with key set in its context map.
func WithContext(state types.ConversationState, key string, value any) types.ConversationState {
	out := types.ConversationState{
		Step:           state.Step,
		Context:        cloneMap(state.Context),
		PendingActions: slices.Clone(state.PendingActions),
	}
	if out.Context == nil {
		out.Context = make(map[string]any, 1)
	}
	out.Context[key] = value
	return out
}

// WithPendingActions returns a copy of state whose pending action list is
// replaced by actions.
func WithPendingActions(state types.ConversationState, actions ...string) types.ConversationState {
	return types.ConversationState{
		Step:           state.Step,
		Context:        cloneMap(state.Context),
		PendingActions: slices.Clone(actions),
	}
}

// ResetState returns the flow to its initial step. Context and pending
// actions are cleared; the message log and history are not touched.
func ResetState(types.ConversationState) types.ConversationState {
	return NewConversationState()
}
