package state

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// HistoryStore is a JSONL-backed append-only audit log.
// Entries are stored per composition in history/<compositionID>.jsonl,
// outside the composition directory so that deleting a composition keeps
// its trail.
type HistoryStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.CompositionID]*sync.Mutex
}

// NewHistoryStore creates a new file-backed HistoryStore rooted at the given directory.
func NewHistoryStore(root string) *HistoryStore {
	return &HistoryStore{
		root:  root,
		locks: make(map[types.CompositionID]*sync.Mutex),
	}
}

// getLock returns the per-composition mutex, creating one if it doesn't exist.
func (h *HistoryStore) getLock(id types.CompositionID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	if lock, ok := h.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	h.locks[id] = lock
	return lock
}

func (h *HistoryStore) historyPath(id types.CompositionID) string {
	return filepath.Join(h.root, "history", string(id)+".jsonl")
}

// load reads every entry of the log. Caller must hold the composition lock.
func (h *HistoryStore) load(id types.CompositionID) ([]types.ConversationHistory, error) {
	f, err := os.Open(h.historyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open history file")
	}
	defer f.Close()

	var entries []types.ConversationHistory
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry types.ConversationHistory
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, errors.Wrap(err, "unmarshal history entry")
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan history file")
	}
	return entries, nil
}

// Append validates entry, assigns its id, timestamp and sequence number,
// and writes it at the end of the composition's log. entry is updated in
// place with the assigned values.
func (h *HistoryStore) Append(_ context.Context, entry *types.ConversationHistory) error {
	// An empty id is reported by RecordHistory below.
	if entry.CompositionID != "" {
		if err := checkID("composition id", string(entry.CompositionID)); err != nil {
			return err
		}
	}

	lock := h.getLock(entry.CompositionID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := h.load(entry.CompositionID)
	if err != nil {
		return err
	}
	recorded, err := compose.RecordHistory(existing, *entry)
	if err != nil {
		return err
	}
	*entry = recorded[len(recorded)-1]

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal history entry")
	}

	path := h.historyPath(entry.CompositionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create history dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open history file")
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "write history entry")
	}
	return nil
}

// Tail returns the last limit entries in recorded order. A limit of zero or
// less returns the whole log.
func (h *HistoryStore) Tail(_ context.Context, id types.CompositionID, limit int) ([]types.ConversationHistory, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return nil, err
	}

	lock := h.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	entries, err := h.load(id)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries recorded for the composition.
func (h *HistoryStore) Count(_ context.Context, id types.CompositionID) (int64, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return 0, err
	}

	lock := h.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(h.historyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "open history file")
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "scan history file")
	}
	return count, nil
}
