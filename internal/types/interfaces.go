package types

import (
	"context"
)

type SessionStore interface {
	Create(ctx context.Context, name string) (*Session, error)
	Get(ctx context.Context, id CompositionID) (*Session, error)
	List(ctx context.Context) ([]*Composition, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id CompositionID) error
}

type HistoryStore interface {
	Append(ctx context.Context, entry *ConversationHistory) error
	Tail(ctx context.Context, id CompositionID, limit int) ([]ConversationHistory, error)
	Count(ctx context.Context, id CompositionID) (int64, error)
}

type CanvasStore interface {
	List(ctx context.Context, id CompositionID) ([]PageComponent, error)
	Get(ctx context.Context, id CompositionID, componentID ComponentID) (*PageComponent, error)
	Add(ctx context.Context, id CompositionID, component PageComponent) error
	UpdateData(ctx context.Context, id CompositionID, componentID ComponentID, data ComponentData) error
	SetVisible(ctx context.Context, id CompositionID, componentID ComponentID, visible bool) error
	Move(ctx context.Context, id CompositionID, componentID ComponentID, pos Position) error
	Remove(ctx context.Context, id CompositionID, componentID ComponentID) error
}

type ContentStore interface {
	CreateModel(ctx context.Context, model ContentModel) (*ContentModel, error)
	GetModel(ctx context.Context, id ModelID) (*ContentModel, error)
	ListModels(ctx context.Context) ([]ContentModel, error)
	AddField(ctx context.Context, id ModelID, field ContentField) (*ContentModel, error)
	DeleteModel(ctx context.Context, id ModelID) error
	CreateEntry(ctx context.Context, id ModelID, data map[string]any) (*ContentEntry, error)
	UpdateEntry(ctx context.Context, id EntryID, data map[string]any) (*ContentEntry, error)
	GetEntry(ctx context.Context, id EntryID) (*ContentEntry, error)
	DeleteEntry(ctx context.Context, id EntryID) error
	ListEntries(ctx context.Context, id ModelID) ([]ContentEntry, error)
	Close() error
}

type AttachmentStore interface {
	Put(ctx context.Context, id CompositionID, name string, data []byte) (*MessageAttachment, error)
	Get(ctx context.Context, id AttachmentID) ([]byte, error)
	GetMeta(ctx context.Context, id AttachmentID) (*MessageAttachment, error)
	SetAnalysis(ctx context.Context, id AttachmentID, analysis AttachmentAnalysis) (*MessageAttachment, error)
}
