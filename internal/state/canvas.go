package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// CanvasStore is a JSON-file-backed store for the components placed on each
// composition's page, kept in compositions/<id>/canvas.json in canvas order.
type CanvasStore struct {
	root string
	mu   sync.RWMutex
}

// NewCanvasStore creates a new file-backed CanvasStore rooted at the given directory.
func NewCanvasStore(root string) *CanvasStore {
	return &CanvasStore{root: root}
}

func (s *CanvasStore) canvasPath(id types.CompositionID) string {
	return filepath.Join(s.root, "compositions", string(id), "canvas.json")
}

// List returns all components of the composition. Returns an empty slice if
// nothing has been placed yet.
func (s *CanvasStore) List(_ context.Context, id types.CompositionID) ([]types.PageComponent, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	components, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if components == nil {
		return []types.PageComponent{}, nil
	}
	return components, nil
}

// Get finds a component by id.
func (s *CanvasStore) Get(_ context.Context, id types.CompositionID, componentID types.ComponentID) (*types.PageComponent, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	components, err := s.load(id)
	if err != nil {
		return nil, err
	}
	for i := range components {
		if components[i].ID == componentID {
			return &components[i], nil
		}
	}
	return nil, &compose.NotFoundError{Kind: "component", ID: string(componentID)}
}

// Add places a component at the end of the canvas. The payload must be
// valid for the component type and the id must be new.
func (s *CanvasStore) Add(_ context.Context, id types.CompositionID, component types.PageComponent) error {
	if err := checkID("composition id", string(id)); err != nil {
		return err
	}
	if err := component.Validate(); err != nil {
		return &compose.ValidationError{Field: "component", Value: string(component.ID), Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := s.load(id)
	if err != nil {
		return err
	}
	for _, existing := range components {
		if existing.ID == component.ID {
			return &compose.ValidationError{Field: "component id", Value: string(component.ID), Reason: "already on canvas"}
		}
	}

	components = append(components, component)
	return s.save(id, components)
}

// UpdateData replaces the payload of a component. The new payload must match
// the component's type.
func (s *CanvasStore) UpdateData(ctx context.Context, id types.CompositionID, componentID types.ComponentID, data types.ComponentData) error {
	return s.mutate(id, componentID, func(c *types.PageComponent) error {
		updated := *c
		updated.Data = data
		if err := updated.Validate(); err != nil {
			return &compose.ValidationError{Field: "component data", Value: string(componentID), Reason: err.Error()}
		}
		*c = updated
		return nil
	})
}

// SetVisible toggles the visibility flag of a component.
func (s *CanvasStore) SetVisible(_ context.Context, id types.CompositionID, componentID types.ComponentID, visible bool) error {
	return s.mutate(id, componentID, func(c *types.PageComponent) error {
		c.Visible = visible
		return nil
	})
}

// Move sets the position of a component.
func (s *CanvasStore) Move(_ context.Context, id types.CompositionID, componentID types.ComponentID, pos types.Position) error {
	return s.mutate(id, componentID, func(c *types.PageComponent) error {
		c.Position = pos
		return nil
	})
}

// Remove deletes a component from the canvas.
func (s *CanvasStore) Remove(_ context.Context, id types.CompositionID, componentID types.ComponentID) error {
	if err := checkID("composition id", string(id)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := s.load(id)
	if err != nil {
		return err
	}
	for i, c := range components {
		if c.ID == componentID {
			components = append(components[:i], components[i+1:]...)
			return s.save(id, components)
		}
	}
	return &compose.NotFoundError{Kind: "component", ID: string(componentID)}
}

func (s *CanvasStore) mutate(id types.CompositionID, componentID types.ComponentID, fn func(*types.PageComponent) error) error {
	if err := checkID("composition id", string(id)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := s.load(id)
	if err != nil {
		return err
	}
	for i := range components {
		if components[i].ID != componentID {
			continue
		}
		if err := fn(&components[i]); err != nil {
			return err
		}
		return s.save(id, components)
	}
	return &compose.NotFoundError{Kind: "component", ID: string(componentID)}
}

// load reads the canvas file. Returns nil if the file doesn't exist.
func (s *CanvasStore) load(id types.CompositionID) ([]types.PageComponent, error) {
	data, err := os.ReadFile(s.canvasPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read canvas file")
	}

	var components []types.PageComponent
	if err := json.Unmarshal(data, &components); err != nil {
		return nil, errors.Wrap(err, "unmarshal canvas")
	}
	return components, nil
}

func (s *CanvasStore) save(id types.CompositionID, components []types.PageComponent) error {
	data, err := json.MarshalIndent(components, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal canvas")
	}
	return errors.Wrap(writeFileAtomic(s.canvasPath(id), data), "save canvas")
}
