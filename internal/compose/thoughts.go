package compose

import (
	"slices"

	"github.com/user/composablestudio/internal/types"
)

// CompleteThought marks the thought with the given id as shown.
func CompleteThought(thoughts []types.AgentThought, id types.ThoughtID) ([]types.AgentThought, error) {
	i := slices.IndexFunc(thoughts, func(th types.AgentThought) bool { return th.ID == id })
	if i < 0 {
		return nil, &NotFoundError{Kind: "thought", ID: string(id)}
	}
	out := slices.Clone(thoughts)
	out[i].Completed = true
	return out, nil
}
