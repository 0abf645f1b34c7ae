package compose

import (
	"github.com/user/composablestudio/internal/types"
)

// RecordHistory appends entry to the audit log and returns the new log.
// Prior entries are never removed or reordered. A missing id or timestamp is
// filled in, and Seq continues from the last entry.
func RecordHistory(history []types.ConversationHistory, entry types.ConversationHistory) ([]types.ConversationHistory, error) {
	entry, err := PrepareHistory(entry)
	if err != nil {
		return nil, err
	}
	for _, existing := range history {
		if existing.ID == entry.ID {
			return nil, &ValidationError{Field: "history id", Value: string(entry.ID), Reason: "already recorded"}
		}
	}
	if len(history) > 0 {
		entry.Seq = history[len(history)-1].Seq + 1
	} else {
		entry.Seq = 1
	}

	out := make([]types.ConversationHistory, len(history), len(history)+1)
	copy(out, history)
	return append(out, entry), nil
}

// PrepareHistory validates a single entry and fills in its id and
// timestamp. Details are rewritten to the values JSON decoding yields
// (numbers become float64, lists []any), so a stored snapshot reads back
// equal to the one in memory. Stores that keep the log elsewhere use it
// before appending.
func PrepareHistory(entry types.ConversationHistory) (types.ConversationHistory, error) {
	if entry.CompositionID == "" {
		return entry, &ValidationError{Field: "composition id", Reason: "empty"}
	}
	if !entry.Action.Valid() {
		return entry, &ValidationError{Field: "history action", Value: string(entry.Action), Reason: "unknown action"}
	}
	if entry.ID == "" {
		entry.ID = types.NewHistoryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	details, err := jsonMap(entry.Details)
	if err != nil {
		return entry, &ValidationError{Field: "history details", Value: string(entry.Action), Reason: err.Error()}
	}
	entry.Details = details
	return entry, nil
}
