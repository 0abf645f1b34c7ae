// Package studio orchestrates composition sessions: it applies the pure
// compose operations to stored sessions, keeps the canvas and content stores
// in step, records every mutation in the audit log, and notifies listeners.
package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	ctxengine "github.com/user/composablestudio/internal/context"
	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/metrics"
	"github.com/user/composablestudio/internal/types"
)

// Stores bundles the persistence the service works against.
type Stores struct {
	Sessions    types.SessionStore
	History     types.HistoryStore
	Canvas      types.CanvasStore
	Content     types.ContentStore
	Attachments types.AttachmentStore
}

// Snapshot is the full observable state of a composition.
type Snapshot struct {
	Composition types.Composition       `json:"composition"`
	State       types.ConversationState `json:"state"`
	Compose     types.ComposeState      `json:"compose"`
	Components  []types.PageComponent   `json:"components"`
}

// Service is the entry point for every studio operation.
type Service struct {
	stores  Stores
	engine  *ctxengine.Engine
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[types.CompositionID]*sync.Mutex

	listeners *listeners
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records operation counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEngine enables Transcript.
func WithEngine(e *ctxengine.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// New creates a service over the given stores.
func New(stores Stores, opts ...Option) *Service {
	s := &Service{
		stores:    stores,
		locks:     make(map[types.CompositionID]*sync.Mutex),
		listeners: newListeners(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getLock returns the per-composition mutex, creating one if it doesn't exist.
func (s *Service) getLock(id types.CompositionID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, ErrorKind(err), time.Since(start))
}

// change is applied to a loaded session under the composition lock. It
// returns the audit entries describing what it did, and pushes onto undo a
// compensating write for every canvas or content store change it makes.
type change func(ctx context.Context, sess *types.Session, undo *undoLog) ([]types.ConversationHistory, error)

// mutate loads the session, applies fn, records its history entries in the
// session, saves it, and then appends the entries to the durable log before
// publishing. If fn or the save fails, the store writes fn made are undone,
// so the canvas and content never hold changes the session did not record.
// The durable log is written last: after an append failure it lags the
// session, never the other way round.
func (s *Service) mutate(ctx context.Context, op string, id types.CompositionID, fn change) (snap *Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.stores.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	undo := &undoLog{}
	defer func() {
		if err != nil {
			undo.rollback(ctx, id)
		}
	}()

	entries, err := fn(ctx, sess, undo)
	if err != nil {
		return nil, err
	}
	recorded := make([]types.ConversationHistory, 0, len(entries))
	for _, entry := range entries {
		entry.CompositionID = id
		if sess.Compose, err = compose.WithHistory(sess.Compose, entry); err != nil {
			return nil, err
		}
		recorded = append(recorded, sess.Compose.ConversationHistory[len(sess.Compose.ConversationHistory)-1])
	}
	if err = s.stores.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	undo.commit()

	for i := range recorded {
		if appendErr := s.stores.History.Append(ctx, &recorded[i]); appendErr != nil {
			logger.For("studio").Error().Err(appendErr).
				Str("composition", string(id)).
				Str("history_id", string(recorded[i].ID)).
				Msg("audit log append failed")
		}
	}

	snap, err = s.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	logger.For("studio").Debug().
		Str("op", op).
		Str("composition", string(id)).
		Str("step", string(sess.State.Step)).
		Int("history", len(entries)).
		Msg("composition updated")
	s.listeners.publish(*snap)
	return snap, nil
}

func (s *Service) snapshot(ctx context.Context, sess *types.Session) (*Snapshot, error) {
	components, err := s.stores.Canvas.List(ctx, sess.Composition.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Composition: sess.Composition,
		State:       sess.State,
		Compose:     sess.Compose,
		Components:  components,
	}, nil
}

// Create starts a new composition.
func (s *Service) Create(ctx context.Context, name string) (snap *Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	sess, err := s.stores.Sessions.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	logger.For("studio").Info().Str("composition", string(sess.Composition.ID)).Str("name", sess.Composition.Name).Msg("composition created")
	return s.snapshot(ctx, sess)
}

// List returns every composition, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*types.Composition, error) {
	return s.stores.Sessions.List(ctx)
}

// Snapshot returns the current state of a composition.
func (s *Service) Snapshot(ctx context.Context, id types.CompositionID) (*Snapshot, error) {
	sess, err := s.stores.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sess)
}

// Delete removes a composition. Its audit log is kept.
func (s *Service) Delete(ctx context.Context, id types.CompositionID) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()
	return s.stores.Sessions.Delete(ctx, id)
}

// History returns the last limit audit entries of a composition.
func (s *Service) History(ctx context.Context, id types.CompositionID, limit int) ([]types.ConversationHistory, error) {
	return s.stores.History.Tail(ctx, id, limit)
}

// SendMessage appends msg to the conversation. A missing id or timestamp is
// filled in. Attachments referenced by id only are resolved from the
// attachment store.
func (s *Service) SendMessage(ctx context.Context, id types.CompositionID, msg types.ChatMessage) (*Snapshot, error) {
	return s.mutate(ctx, "send_message", id, func(ctx context.Context, sess *types.Session, _ *undoLog) ([]types.ConversationHistory, error) {
		if msg.ID == "" {
			msg.ID = types.NewMessageID()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		if err := s.resolveAttachments(ctx, &msg); err != nil {
			return nil, err
		}
		next, err := compose.WithMessage(sess.Compose, msg)
		if err != nil {
			return nil, err
		}
		sess.Compose = next
		return []types.ConversationHistory{{
			Action:      types.HistoryMessageSent,
			Description: fmt.Sprintf("%s message sent", msg.Role),
			Details:     map[string]any{"message_id": string(msg.ID), "role": string(msg.Role)},
		}}, nil
	})
}

func (s *Service) resolveAttachments(ctx context.Context, msg *types.ChatMessage) error {
	if s.stores.Attachments == nil {
		return nil
	}
	for i, a := range msg.Attachments {
		if a.ID == "" || a.Name != "" {
			continue
		}
		meta, err := s.stores.Attachments.GetMeta(ctx, a.ID)
		if err != nil {
			return err
		}
		msg.Attachments[i] = *meta
	}
	return nil
}

// Advance moves the flow to next.
func (s *Service) Advance(ctx context.Context, id types.CompositionID, next types.Step) (*Snapshot, error) {
	return s.mutate(ctx, "advance", id, func(_ context.Context, sess *types.Session, _ *undoLog) ([]types.ConversationHistory, error) {
		entry, err := advance(sess, next)
		if err != nil {
			return nil, err
		}
		return []types.ConversationHistory{entry}, nil
	})
}

func advance(sess *types.Session, next types.Step) (types.ConversationHistory, error) {
	from := sess.State.Step
	state, err := compose.AdvanceState(sess.State, next)
	if err != nil {
		return types.ConversationHistory{}, err
	}
	sess.State = state
	return types.ConversationHistory{
		Action:      types.HistoryStateAdvanced,
		Description: fmt.Sprintf("advanced from %s to %s", from, next),
		Details:     map[string]any{"from": string(from), "to": string(next)},
	}, nil
}

// Reset returns the flow to its initial step. Messages, canvas and audit log
// are kept.
func (s *Service) Reset(ctx context.Context, id types.CompositionID) (*Snapshot, error) {
	return s.mutate(ctx, "reset", id, func(_ context.Context, sess *types.Session, _ *undoLog) ([]types.ConversationHistory, error) {
		from := sess.State.Step
		sess.State = compose.ResetState(sess.State)
		return []types.ConversationHistory{{
			Action:      types.HistoryStateAdvanced,
			Description: fmt.Sprintf("reset from %s", from),
			Details:     map[string]any{"from": string(from), "to": string(sess.State.Step), "reset": true},
		}}, nil
	})
}

// ResolveDisambiguation collapses the disambiguation on messageID to the
// chosen option and places its preview on the canvas. A session waiting on
// the choice moves on to hero-created.
func (s *Service) ResolveDisambiguation(ctx context.Context, id types.CompositionID, messageID types.MessageID, optionID string) (*Snapshot, error) {
	return s.mutate(ctx, "resolve_disambiguation", id, func(ctx context.Context, sess *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		msg, err := compose.FindMessage(sess.Compose, messageID)
		if err != nil {
			return nil, err
		}
		collapsed, preview, err := compose.CollapseDisambiguation(msg, optionID)
		if err != nil {
			return nil, err
		}
		existing, err := s.stores.Canvas.List(ctx, id)
		if err != nil {
			return nil, err
		}
		component := types.PageComponent{
			ID:       types.NewComponentID(),
			Type:     preview.Type,
			Data:     preview.Data,
			Position: types.Position{Y: float64(len(existing))},
			Visible:  true,
		}

		// The state change is checked before anything is written so a
		// rejected transition leaves the canvas untouched.
		var entries []types.ConversationHistory
		if sess.State.Step == types.StepAwaitingDisambiguation {
			adv, err := advance(sess, types.StepHeroCreated)
			if err != nil {
				return nil, err
			}
			entries = append(entries, adv)
		}
		if sess.Compose, err = compose.ReplaceMessage(sess.Compose, collapsed); err != nil {
			return nil, err
		}
		if err := s.stores.Canvas.Add(ctx, id, component); err != nil {
			return nil, err
		}
		undo.push("remove component", func(ctx context.Context) error {
			return s.stores.Canvas.Remove(ctx, id, component.ID)
		})

		head := []types.ConversationHistory{
			{
				Action:      types.HistoryDisambiguationResolved,
				Description: fmt.Sprintf("picked %q", collapsed.Disambiguation[0].Label),
				Details:     map[string]any{"message_id": string(messageID), "option_id": optionID},
			},
			componentAdded(component),
		}
		return append(head, entries...), nil
	})
}

func componentAdded(c types.PageComponent) types.ConversationHistory {
	return types.ConversationHistory{
		Action:      types.HistoryComponentAdded,
		Description: fmt.Sprintf("%s component added", c.Type),
		Details:     map[string]any{"component_id": string(c.ID), "type": string(c.Type)},
	}
}

// AddComponent places a component at the end of the canvas. A missing id is
// generated.
func (s *Service) AddComponent(ctx context.Context, id types.CompositionID, component types.PageComponent) (*Snapshot, error) {
	return s.mutate(ctx, "add_component", id, func(ctx context.Context, _ *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		if component.ID == "" {
			component.ID = types.NewComponentID()
		}
		if err := s.stores.Canvas.Add(ctx, id, component); err != nil {
			return nil, err
		}
		undo.push("remove component", func(ctx context.Context) error {
			return s.stores.Canvas.Remove(ctx, id, component.ID)
		})
		return []types.ConversationHistory{componentAdded(component)}, nil
	})
}

// ComponentUpdate lists the component fields to change. Nil fields are left
// as they are.
type ComponentUpdate struct {
	Data     types.ComponentData
	Visible  *bool
	Position *types.Position
}

// UpdateComponent applies update to a placed component.
func (s *Service) UpdateComponent(ctx context.Context, id types.CompositionID, componentID types.ComponentID, update ComponentUpdate) (*Snapshot, error) {
	return s.mutate(ctx, "update_component", id, func(ctx context.Context, _ *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		if update.Data == nil && update.Visible == nil && update.Position == nil {
			return nil, &compose.ValidationError{Field: "component update", Value: string(componentID), Reason: "nothing to change"}
		}
		// Fail early on an unknown component so no partial update is written.
		prev, err := s.stores.Canvas.Get(ctx, id, componentID)
		if err != nil {
			return nil, err
		}

		var changed []string
		if update.Data != nil {
			if err := s.stores.Canvas.UpdateData(ctx, id, componentID, update.Data); err != nil {
				return nil, err
			}
			undo.push("restore component data", func(ctx context.Context) error {
				return s.stores.Canvas.UpdateData(ctx, id, componentID, prev.Data)
			})
			changed = append(changed, "data")
		}
		if update.Visible != nil {
			if err := s.stores.Canvas.SetVisible(ctx, id, componentID, *update.Visible); err != nil {
				return nil, err
			}
			undo.push("restore component visibility", func(ctx context.Context) error {
				return s.stores.Canvas.SetVisible(ctx, id, componentID, prev.Visible)
			})
			changed = append(changed, "visible")
		}
		if update.Position != nil {
			if err := s.stores.Canvas.Move(ctx, id, componentID, *update.Position); err != nil {
				return nil, err
			}
			undo.push("restore component position", func(ctx context.Context) error {
				return s.stores.Canvas.Move(ctx, id, componentID, prev.Position)
			})
			changed = append(changed, "position")
		}
		return []types.ConversationHistory{{
			Action:      types.HistoryComponentUpdated,
			Description: "component updated",
			Details:     map[string]any{"component_id": string(componentID), "changed": changed},
		}}, nil
	})
}

// RemoveComponent takes a component off the canvas.
func (s *Service) RemoveComponent(ctx context.Context, id types.CompositionID, componentID types.ComponentID) (*Snapshot, error) {
	return s.mutate(ctx, "remove_component", id, func(ctx context.Context, _ *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		prev, err := s.stores.Canvas.Get(ctx, id, componentID)
		if err != nil {
			return nil, err
		}
		if err := s.stores.Canvas.Remove(ctx, id, componentID); err != nil {
			return nil, err
		}
		undo.push("restore component", func(ctx context.Context) error {
			return s.stores.Canvas.Add(ctx, id, *prev)
		})
		return []types.ConversationHistory{{
			Action:      types.HistoryComponentRemoved,
			Description: "component removed",
			Details:     map[string]any{"component_id": string(componentID)},
		}}, nil
	})
}

// CreateContentModel stores a new content model on behalf of a composition.
// A session at hero-created moves on to content-model-created.
func (s *Service) CreateContentModel(ctx context.Context, id types.CompositionID, model types.ContentModel) (created *types.ContentModel, snap *Snapshot, err error) {
	snap, err = s.mutate(ctx, "create_content_model", id, func(ctx context.Context, sess *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		var adv *types.ConversationHistory
		if sess.State.Step == types.StepHeroCreated {
			entry, err := advance(sess, types.StepContentModelCreated)
			if err != nil {
				return nil, err
			}
			adv = &entry
		}
		if created, err = s.stores.Content.CreateModel(ctx, model); err != nil {
			return nil, err
		}
		modelID := created.ID
		undo.push("delete content model", func(ctx context.Context) error {
			return s.stores.Content.DeleteModel(ctx, modelID)
		})
		sess.State = compose.WithContext(sess.State, "content_model_id", string(created.ID))

		entries := []types.ConversationHistory{{
			Action:      types.HistoryContentModelCreated,
			Description: fmt.Sprintf("content model %q created", created.Name),
			Details:     map[string]any{"model_id": string(created.ID), "fields": len(created.Fields)},
		}}
		if adv != nil {
			entries = append(entries, *adv)
		}
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, snap, nil
}

// CreateContentEntry stores a new entry of modelID.
func (s *Service) CreateContentEntry(ctx context.Context, id types.CompositionID, modelID types.ModelID, data map[string]any) (entry *types.ContentEntry, snap *Snapshot, err error) {
	snap, err = s.mutate(ctx, "create_content_entry", id, func(ctx context.Context, _ *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		if entry, err = s.stores.Content.CreateEntry(ctx, modelID, data); err != nil {
			return nil, err
		}
		entryID := entry.ID
		undo.push("delete content entry", func(ctx context.Context) error {
			return s.stores.Content.DeleteEntry(ctx, entryID)
		})
		return []types.ConversationHistory{{
			Action:      types.HistoryContentEntryCreated,
			Description: "content entry created",
			Details:     map[string]any{"model_id": string(modelID), "entry_id": string(entry.ID)},
		}}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, snap, nil
}

// UpdateContentEntry replaces the data of an entry.
func (s *Service) UpdateContentEntry(ctx context.Context, id types.CompositionID, entryID types.EntryID, data map[string]any) (entry *types.ContentEntry, snap *Snapshot, err error) {
	snap, err = s.mutate(ctx, "update_content_entry", id, func(ctx context.Context, _ *types.Session, undo *undoLog) ([]types.ConversationHistory, error) {
		prev, err := s.stores.Content.GetEntry(ctx, entryID)
		if err != nil {
			return nil, err
		}
		if entry, err = s.stores.Content.UpdateEntry(ctx, entryID, data); err != nil {
			return nil, err
		}
		undo.push("restore content entry", func(ctx context.Context) error {
			_, err := s.stores.Content.UpdateEntry(ctx, entryID, prev.Data)
			return err
		})
		return []types.ConversationHistory{{
			Action:      types.HistoryContentEntryUpdated,
			Description: "content entry updated",
			Details:     map[string]any{"model_id": string(entry.ModelID), "entry_id": string(entry.ID)},
		}}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, snap, nil
}

// SetView switches the studio between the chat and history views. View
// changes are not audited.
func (s *Service) SetView(ctx context.Context, id types.CompositionID, view types.View) (*Snapshot, error) {
	return s.mutate(ctx, "set_view", id, func(_ context.Context, sess *types.Session, _ *undoLog) ([]types.ConversationHistory, error) {
		next, err := compose.WithView(sess.Compose, view)
		if err != nil {
			return nil, err
		}
		sess.Compose = next
		return nil, nil
	})
}

// UploadAttachment stores a file so a later message can reference it.
func (s *Service) UploadAttachment(ctx context.Context, id types.CompositionID, name string, data []byte) (att *types.MessageAttachment, err error) {
	start := time.Now()
	defer func() { s.observe("upload_attachment", start, err) }()

	if _, err := s.stores.Sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.stores.Attachments.Put(ctx, id, name, data)
}

// Transcript renders the composition as an agent transcript within the
// token budget of the context engine.
func (s *Service) Transcript(ctx context.Context, id types.CompositionID) ([]ctxengine.Message, error) {
	if s.engine == nil {
		return nil, errors.New("transcript: no context engine configured")
	}
	sess, err := s.stores.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	components, err := s.stores.Canvas.List(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.BuildTranscript(sess, components)
}
