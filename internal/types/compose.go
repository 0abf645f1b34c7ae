package types

import (
	"time"
)

type View string

const (
	ViewChat    View = "chat"
	ViewHistory View = "history"
)

func (v View) Valid() bool {
	return v == ViewChat || v == ViewHistory
}

// ComposeState is the UI-level aggregate of the current studio view.
type ComposeState struct {
	ActiveView          View                  `json:"active_view"`
	ConversationHistory []ConversationHistory `json:"conversation_history"`
	CurrentMessages     []ChatMessage         `json:"current_messages"`
}

// Composition is the listing record of a page-building project.
type Composition struct {
	ID        CompositionID `json:"id"`
	Name      string        `json:"name"`
	Step      Step          `json:"step"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Session is the persisted working state of one composition.
type Session struct {
	Composition Composition       `json:"composition"`
	State       ConversationState `json:"state"`
	Compose     ComposeState      `json:"compose"`
}
