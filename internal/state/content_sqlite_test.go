package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

func newContentStore(t *testing.T) *SQLiteContentStore {
	t.Helper()
	store, err := NewSQLiteContentStore(SQLiteContentDSN(filepath.Join(t.TempDir(), "content.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func blogModel() types.ContentModel {
	return types.ContentModel{
		Name: "Blog post",
		Fields: []types.ContentField{
			{Name: "title", Type: types.FieldText, Required: true},
			{Name: "views", Type: types.FieldNumber},
			{Name: "status", Type: types.FieldSelect, Options: []string{"draft", "published"}},
		},
	}
}

func TestSQLiteContentStoreModels(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	model, err := store.CreateModel(ctx, blogModel())
	require.NoError(t, err)
	require.NotEmpty(t, model.ID)
	require.Len(t, model.Fields, 3)

	got, err := store.GetModel(ctx, model.ID)
	require.NoError(t, err)
	require.Equal(t, model.Name, got.Name)
	require.Equal(t, model.Fields, got.Fields)
	require.True(t, model.CreatedAt.Equal(got.CreatedAt))

	updated, err := store.AddField(ctx, model.ID, types.ContentField{Name: "published_on", Type: types.FieldDate})
	require.NoError(t, err)
	require.Len(t, updated.Fields, 4)

	_, err = store.AddField(ctx, model.ID, types.ContentField{Name: "title", Type: types.FieldText})
	require.True(t, compose.IsValidation(err))

	models, err := store.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "published_on", models[0].Fields[3].Name)
}

func TestSQLiteContentStoreKeepsGivenModelID(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	m := blogModel()
	m.ID = "hero-copy"
	m.Fields[0].ID = "headline"
	model, err := store.CreateModel(ctx, m)
	require.NoError(t, err)
	require.Equal(t, types.ModelID("hero-copy"), model.ID)
	require.Equal(t, types.FieldID("headline"), model.Fields[0].ID)

	got, err := store.GetModel(ctx, "hero-copy")
	require.NoError(t, err)
	require.Equal(t, model.Fields, got.Fields)
}

func TestSQLiteContentStoreDeleteEntry(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	model, err := store.CreateModel(ctx, blogModel())
	require.NoError(t, err)
	entry, err := store.CreateEntry(ctx, model.ID, map[string]any{"title": "Gone"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteEntry(ctx, entry.ID))
	_, err = store.GetEntry(ctx, entry.ID)
	require.True(t, compose.IsNotFound(err))
	require.True(t, compose.IsNotFound(store.DeleteEntry(ctx, entry.ID)))

	_, err = store.GetModel(ctx, model.ID)
	require.NoError(t, err)
}

func TestSQLiteContentStoreEntries(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	model, err := store.CreateModel(ctx, blogModel())
	require.NoError(t, err)

	entry, err := store.CreateEntry(ctx, model.ID, map[string]any{"title": "Hello", "views": 3, "status": "draft"})
	require.NoError(t, err)
	require.Equal(t, model.ID, entry.ModelID)
	require.Equal(t, "Hello", entry.Data["title"])
	require.Equal(t, float64(3), entry.Data["views"])

	_, err = store.CreateEntry(ctx, model.ID, map[string]any{"views": 1})
	var schemaErr *compose.SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, []string{"title"}, schemaErr.Fields())

	updated, err := store.UpdateEntry(ctx, entry.ID, map[string]any{"title": "Hello again", "status": "published"})
	require.NoError(t, err)
	require.Equal(t, "Hello again", updated.Data["title"])
	require.True(t, updated.UpdatedAt.After(entry.UpdatedAt))
	require.True(t, updated.CreatedAt.Equal(entry.CreatedAt))

	entries, err := store.ListEntries(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, updated.Data, entries[0].Data)
}

func TestSQLiteContentStoreNotFound(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	_, err := store.GetModel(ctx, "nope")
	require.True(t, compose.IsNotFound(err))
	_, err = store.CreateEntry(ctx, "nope", map[string]any{})
	require.True(t, compose.IsNotFound(err))
	_, err = store.GetEntry(ctx, "nope")
	require.True(t, compose.IsNotFound(err))
	_, err = store.ListEntries(ctx, "nope")
	require.True(t, compose.IsNotFound(err))
	require.True(t, compose.IsNotFound(store.DeleteModel(ctx, "nope")))
}

func TestSQLiteContentStoreDeleteCascades(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	model, err := store.CreateModel(ctx, blogModel())
	require.NoError(t, err)
	entry, err := store.CreateEntry(ctx, model.ID, map[string]any{"title": "Bye"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteModel(ctx, model.ID))

	_, err = store.GetEntry(ctx, entry.ID)
	require.True(t, compose.IsNotFound(err))
	models, err := store.ListModels(ctx)
	require.NoError(t, err)
	require.Empty(t, models)
}

func TestNewSQLiteContentStoreEmptyDSN(t *testing.T) {
	_, err := NewSQLiteContentStore(" ")
	require.Error(t, err)
}

func TestSQLiteContentStoreCheckpoint(t *testing.T) {
	store := newContentStore(t)
	ctx := context.Background()

	_, err := store.CreateModel(ctx, blogModel())
	require.NoError(t, err)
	require.NoError(t, store.Checkpoint(ctx))
}
