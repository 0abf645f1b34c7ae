package compose

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/types"
)

func NewComposeState() types.ComposeState {
	return types.ComposeState{ActiveView: types.ViewChat}
}

// WithMessage returns state with msg appended to the current messages.
func WithMessage(state types.ComposeState, msg types.ChatMessage) (types.ComposeState, error) {
	messages, err := AppendMessage(state.CurrentMessages, msg)
	if err != nil {
		return state, err
	}
	state.CurrentMessages = messages
	return state, nil
}

// WithHistory returns state with entry recorded in its history.
func WithHistory(state types.ComposeState, entry types.ConversationHistory) (types.ComposeState, error) {
	history, err := RecordHistory(state.ConversationHistory, entry)
	if err != nil {
		return state, err
	}
	state.ConversationHistory = history
	return state, nil
}

// ReplaceMessage swaps the message carrying msg.ID for msg. Used when a
// disambiguation collapses; the log keeps its order and length.
func ReplaceMessage(state types.ComposeState, msg types.ChatMessage) (types.ComposeState, error) {
	for i, m := range state.CurrentMessages {
		if m.ID != msg.ID {
			continue
		}
		if err := validateMessage(msg); err != nil {
			return state, err
		}
		stored, err := cloneMessage(msg)
		if err != nil {
			return state, err
		}
		messages := make([]types.ChatMessage, len(state.CurrentMessages))
		copy(messages, state.CurrentMessages)
		messages[i] = stored
		state.CurrentMessages = messages
		return state, nil
	}
	return state, &NotFoundError{Kind: "message", ID: string(msg.ID)}
}

// FindMessage returns the message with the given id.
func FindMessage(state types.ComposeState, id types.MessageID) (types.ChatMessage, error) {
	for _, m := range state.CurrentMessages {
		if m.ID == id {
			return cloneMessage(m)
		}
	}
	return types.ChatMessage{}, &NotFoundError{Kind: "message", ID: string(id)}
}

func WithView(state types.ComposeState, view types.View) (types.ComposeState, error) {
	if !view.Valid() {
		return state, &ValidationError{Field: "view", Value: string(view), Reason: "must be chat or history"}
	}
	state.ActiveView = view
	return state, nil
}

// MarshalSnapshot encodes state as JSON.
func MarshalSnapshot(state types.ComposeState) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, "marshal compose snapshot")
	}
	return b, nil
}

// UnmarshalSnapshot decodes a snapshot written by MarshalSnapshot.
func UnmarshalSnapshot(b []byte) (types.ComposeState, error) {
	var state types.ComposeState
	if err := json.Unmarshal(b, &state); err != nil {
		return types.ComposeState{}, errors.Wrap(err, "unmarshal compose snapshot")
	}
	if state.ActiveView == "" {
		state.ActiveView = types.ViewChat
	}
	if !state.ActiveView.Valid() {
		return types.ComposeState{}, &ValidationError{Field: "view", Value: string(state.ActiveView), Reason: "must be chat or history"}
	}
	return state, nil
}
