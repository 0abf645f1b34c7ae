package types

import (
	"time"
)

// HistoryAction classifies an entry of the composition audit log.
type HistoryAction string

const (
	HistoryComponentAdded         HistoryAction = "component-added"
	HistoryComponentUpdated       HistoryAction = "component-updated"
	HistoryComponentRemoved       HistoryAction = "component-removed"
	HistoryContentModelCreated    HistoryAction = "content-model-created"
	HistoryContentEntryCreated    HistoryAction = "content-entry-created"
	HistoryContentEntryUpdated    HistoryAction = "content-entry-updated"
	HistoryStateAdvanced          HistoryAction = "state-advanced"
	HistoryDisambiguationResolved HistoryAction = "disambiguation-resolved"
	HistoryMessageSent            HistoryAction = "message-sent"
	HistoryActionInvoked          HistoryAction = "action-invoked"
)

func (a HistoryAction) Valid() bool {
	switch a {
	case HistoryComponentAdded, HistoryComponentUpdated, HistoryComponentRemoved,
		HistoryContentModelCreated, HistoryContentEntryCreated, HistoryContentEntryUpdated,
		HistoryStateAdvanced, HistoryDisambiguationResolved, HistoryMessageSent, HistoryActionInvoked:
		return true
	}
	return false
}

// ConversationHistory is an append-only audit entry for a composition.
type ConversationHistory struct {
	ID            HistoryID      `json:"id"`
	CompositionID CompositionID  `json:"composition_id"`
	Seq           int64          `json:"seq,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Action        HistoryAction  `json:"action"`
	Description   string         `json:"description"`
	Details       map[string]any `json:"details,omitempty"`
}
