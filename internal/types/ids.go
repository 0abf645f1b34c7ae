package types

import (
	"github.com/google/uuid"
)

type CompositionID string
type MessageID string
type ComponentID string
type ModelID string
type EntryID string
type FieldID string
type HistoryID string
type ThoughtID string
type AttachmentID string
type RunID string

func NewCompositionID() CompositionID {
	return CompositionID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewComponentID() ComponentID {
	return ComponentID(uuid.New().String())
}

func NewModelID() ModelID {
	return ModelID(uuid.New().String())
}

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

func NewFieldID() FieldID {
	return FieldID(uuid.New().String())
}

func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

func NewThoughtID() ThoughtID {
	return ThoughtID(uuid.New().String())
}

func NewAttachmentID() AttachmentID {
	return AttachmentID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
