package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// SessionStore is a JSON-file-backed composition session store.
// It keeps listing data in compositions/index.json and each session's
// working state in compositions/<id>/session.json.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a new file-backed SessionStore rooted at the given directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "compositions", "index.json")
}

func (s *SessionStore) sessionDir(id types.CompositionID) string {
	return filepath.Join(s.root, "compositions", string(id))
}

func (s *SessionStore) sessionPath(id types.CompositionID) string {
	return filepath.Join(s.sessionDir(id), "session.json")
}

// loadIndex reads index.json and returns a map keyed by composition id.
func (s *SessionStore) loadIndex() (map[types.CompositionID]*types.Composition, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.CompositionID]*types.Composition), nil
		}
		return nil, errors.Wrap(err, "read composition index")
	}

	var list []*types.Composition
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "unmarshal composition index")
	}

	index := make(map[types.CompositionID]*types.Composition, len(list))
	for _, c := range list {
		index[c.ID] = c
	}
	return index, nil
}

func (s *SessionStore) saveIndex(index map[types.CompositionID]*types.Composition) error {
	list := make([]*types.Composition, 0, len(index))
	for _, c := range index {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal composition index")
	}
	return errors.Wrap(writeFileAtomic(s.indexPath(), data), "save composition index")
}

func (s *SessionStore) writeSession(session *types.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	return errors.Wrap(writeFileAtomic(s.sessionPath(session.Composition.ID), data), "save session")
}

// Create starts a new composition in the initial step with an empty chat.
func (s *SessionStore) Create(_ context.Context, name string) (*types.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &compose.ValidationError{Field: "composition name", Reason: "empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state := compose.NewConversationState()
	session := &types.Session{
		Composition: types.Composition{
			ID:        types.NewCompositionID(),
			Name:      name,
			Step:      state.Step,
			CreatedAt: now,
			UpdatedAt: now,
		},
		State:   state,
		Compose: compose.NewComposeState(),
	}

	if err := s.writeSession(session); err != nil {
		return nil, err
	}
	c := session.Composition
	index[c.ID] = &c
	if err := s.saveIndex(index); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads the full working state of a composition.
func (s *SessionStore) Get(_ context.Context, id types.CompositionID) (*types.Session, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &compose.NotFoundError{Kind: "composition", ID: string(id)}
		}
		return nil, errors.Wrap(err, "read session")
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	return &session, nil
}

// List returns all compositions, most recently updated first.
func (s *SessionStore) List(_ context.Context) ([]*types.Composition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	list := make([]*types.Composition, 0, len(index))
	for _, c := range index {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// Save persists session, setting UpdatedAt to now and mirroring the flow
// step into the listing.
func (s *SessionStore) Save(_ context.Context, session *types.Session) error {
	if err := checkID("composition id", string(session.Composition.ID)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[session.Composition.ID]; !ok {
		return &compose.NotFoundError{Kind: "composition", ID: string(session.Composition.ID)}
	}

	session.Composition.UpdatedAt = time.Now().UTC()
	session.Composition.Step = session.State.Step
	if err := s.writeSession(session); err != nil {
		return err
	}
	c := session.Composition
	index[c.ID] = &c
	return s.saveIndex(index)
}

// Delete removes a composition and everything stored under its directory.
func (s *SessionStore) Delete(_ context.Context, id types.CompositionID) error {
	if err := checkID("composition id", string(id)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[id]; !ok {
		return &compose.NotFoundError{Kind: "composition", ID: string(id)}
	}
	delete(index, id)
	if err := s.saveIndex(index); err != nil {
		return err
	}
	return errors.Wrap(os.RemoveAll(s.sessionDir(id)), "remove composition dir")
}
