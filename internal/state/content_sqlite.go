package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// SQLiteContentDSN returns the connection string for a content database
// stored at path, with WAL journaling and foreign keys enabled.
func SQLiteContentDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

// SQLiteContentStore keeps content models, their fields and their entries
// in SQLite. Deleting a model cascades to its fields and entries.
type SQLiteContentStore struct {
	db *sql.DB
}

func NewSQLiteContentStore(dsn string) (*SQLiteContentStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite content store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: open")
	}
	// A single connection keeps the foreign key pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	s := &SQLiteContentStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteContentStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Checkpoint folds the write-ahead log back into the main database file.
func (s *SQLiteContentStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return errors.Wrap(err, "sqlite content store: checkpoint")
}

func (s *SQLiteContentStore) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS content_models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at_ns INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS content_fields (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			required INTEGER NOT NULL DEFAULT 0,
			options_json TEXT NOT NULL DEFAULT '[]',
			UNIQUE (model_id, name),
			FOREIGN KEY (model_id) REFERENCES content_models(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS content_entries (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			data_json TEXT NOT NULL DEFAULT '{}',
			created_at_ns INTEGER NOT NULL,
			updated_at_ns INTEGER NOT NULL,
			FOREIGN KEY (model_id) REFERENCES content_models(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS content_fields_by_model ON content_fields(model_id, ordinal);`,
		`CREATE INDEX IF NOT EXISTS content_entries_by_model ON content_entries(model_id, created_at_ns);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite content store: migrate")
		}
	}
	return nil
}

// CreateModel validates model and stores it with its fields. A missing id
// or creation time is filled in.
func (s *SQLiteContentStore) CreateModel(ctx context.Context, model types.ContentModel) (*types.ContentModel, error) {
	built, err := compose.NewContentModel(model.Name, model.Fields)
	if err != nil {
		return nil, err
	}
	if model.ID != "" {
		built.ID = model.ID
	}
	if !model.CreatedAt.IsZero() {
		built.CreatedAt = model.CreatedAt.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO content_models (id, name, created_at_ns) VALUES (?, ?, ?)`,
		string(built.ID), built.Name, built.CreatedAt.UnixNano(),
	); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: insert model")
	}
	for i, f := range built.Fields {
		if err := insertField(ctx, tx, built.ID, i, f); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: commit")
	}
	return &built, nil
}

func insertField(ctx context.Context, tx *sql.Tx, modelID types.ModelID, ordinal int, f types.ContentField) error {
	options, err := json.Marshal(f.Options)
	if err != nil {
		return errors.Wrap(err, "sqlite content store: marshal field options")
	}
	if f.Options == nil {
		options = []byte("[]")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO content_fields (id, model_id, ordinal, name, type, required, options_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(f.ID), string(modelID), ordinal, f.Name, string(f.Type), f.Required, string(options),
	)
	return errors.Wrap(err, "sqlite content store: insert field")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteContentStore) GetModel(ctx context.Context, id types.ModelID) (*types.ContentModel, error) {
	return getModel(ctx, s.db, id)
}

func getModel(ctx context.Context, q queryer, id types.ModelID) (*types.ContentModel, error) {
	var (
		model     types.ContentModel
		createdNs int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at_ns FROM content_models WHERE id = ?`, string(id),
	).Scan(&model.ID, &model.Name, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &compose.NotFoundError{Kind: "content model", ID: string(id)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: get model")
	}
	model.CreatedAt = time.Unix(0, createdNs).UTC()

	fields, err := loadFields(ctx, q, id)
	if err != nil {
		return nil, err
	}
	model.Fields = fields
	return &model, nil
}

func loadFields(ctx context.Context, q queryer, id types.ModelID) ([]types.ContentField, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, type, required, options_json FROM content_fields WHERE model_id = ? ORDER BY ordinal`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: query fields")
	}
	defer func() { _ = rows.Close() }()

	var fields []types.ContentField
	for rows.Next() {
		var (
			f       types.ContentField
			options string
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &f.Required, &options); err != nil {
			return nil, errors.Wrap(err, "sqlite content store: scan field")
		}
		if err := json.Unmarshal([]byte(options), &f.Options); err != nil {
			return nil, errors.Wrap(err, "sqlite content store: unmarshal field options")
		}
		if len(f.Options) == 0 {
			f.Options = nil
		}
		fields = append(fields, f)
	}
	return fields, errors.Wrap(rows.Err(), "sqlite content store: iterate fields")
}

// ListModels returns every model, oldest first.
func (s *SQLiteContentStore) ListModels(ctx context.Context) ([]types.ContentModel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM content_models ORDER BY created_at_ns, name`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: list models")
	}
	var ids []types.ModelID
	for rows.Next() {
		var id types.ModelID
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "sqlite content store: scan model id")
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: iterate models")
	}

	models := make([]types.ContentModel, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetModel(ctx, id)
		if err != nil {
			return nil, err
		}
		models = append(models, *m)
	}
	return models, nil
}

// AddField appends a field to an existing model.
func (s *SQLiteContentStore) AddField(ctx context.Context, id types.ModelID, field types.ContentField) (*types.ContentModel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	model, err := getModel(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated, err := compose.AddField(*model, field)
	if err != nil {
		return nil, err
	}
	last := len(updated.Fields) - 1
	if err := insertField(ctx, tx, id, last, updated.Fields[last]); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: commit")
	}
	return &updated, nil
}

// DeleteModel removes a model together with its fields and entries.
func (s *SQLiteContentStore) DeleteModel(ctx context.Context, id types.ModelID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_models WHERE id = ?`, string(id))
	if err != nil {
		return errors.Wrap(err, "sqlite content store: delete model")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite content store: delete model")
	}
	if n == 0 {
		return &compose.NotFoundError{Kind: "content model", ID: string(id)}
	}
	return nil
}

func (s *SQLiteContentStore) DeleteEntry(ctx context.Context, id types.EntryID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_entries WHERE id = ?`, string(id))
	if err != nil {
		return errors.Wrap(err, "sqlite content store: delete entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite content store: delete entry")
	}
	if n == 0 {
		return &compose.NotFoundError{Kind: "content entry", ID: string(id)}
	}
	return nil
}

// CreateEntry validates data against the model and stores a new entry.
func (s *SQLiteContentStore) CreateEntry(ctx context.Context, id types.ModelID, data map[string]any) (*types.ContentEntry, error) {
	model, err := s.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	entry, err := compose.CreateContentEntry(*model, data)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(entry.Data)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: marshal entry data")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO content_entries (id, model_id, data_json, created_at_ns, updated_at_ns) VALUES (?, ?, ?, ?, ?)`,
		string(entry.ID), string(entry.ModelID), string(raw), entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(),
	); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: insert entry")
	}
	// Round-trip through JSON so callers see what later reads return.
	return s.GetEntry(ctx, entry.ID)
}

// UpdateEntry replaces the data of an entry after validating it against
// its model.
func (s *SQLiteContentStore) UpdateEntry(ctx context.Context, id types.EntryID, data map[string]any) (*types.ContentEntry, error) {
	current, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	model, err := s.GetModel(ctx, current.ModelID)
	if err != nil {
		return nil, err
	}
	updated, err := compose.UpdateContentEntry(*model, *current, data)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(updated.Data)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: marshal entry data")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE content_entries SET data_json = ?, updated_at_ns = ? WHERE id = ?`,
		string(raw), updated.UpdatedAt.UnixNano(), string(id),
	); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: update entry")
	}
	return s.GetEntry(ctx, id)
}

func (s *SQLiteContentStore) GetEntry(ctx context.Context, id types.EntryID) (*types.ContentEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model_id, data_json, created_at_ns, updated_at_ns FROM content_entries WHERE id = ?`, string(id))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &compose.NotFoundError{Kind: "content entry", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns the entries of a model, oldest first.
func (s *SQLiteContentStore) ListEntries(ctx context.Context, id types.ModelID) ([]types.ContentEntry, error) {
	if _, err := s.GetModel(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_id, data_json, created_at_ns, updated_at_ns FROM content_entries WHERE model_id = ? ORDER BY created_at_ns, id`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite content store: list entries")
	}
	defer func() { _ = rows.Close() }()

	entries := []types.ContentEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, errors.Wrap(rows.Err(), "sqlite content store: iterate entries")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*types.ContentEntry, error) {
	var entry types.ContentEntry
	var raw string
	var createdNs, updatedNs int64
	if err := row.Scan(&entry.ID, &entry.ModelID, &raw, &createdNs, &updatedNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "sqlite content store: scan entry")
	}
	if err := json.Unmarshal([]byte(raw), &entry.Data); err != nil {
		return nil, errors.Wrap(err, "sqlite content store: unmarshal entry data")
	}
	entry.CreatedAt = time.Unix(0, createdNs).UTC()
	entry.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return &entry, nil
}
