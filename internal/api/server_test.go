package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/dispatch"
	"github.com/user/composablestudio/internal/gateway"
	"github.com/user/composablestudio/internal/metrics"
	"github.com/user/composablestudio/internal/state"
	"github.com/user/composablestudio/internal/studio"
	"github.com/user/composablestudio/internal/types"
)

type fixture struct {
	srv *Server
	svc *studio.Service
}

func setupServer(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	content, err := state.NewSQLiteContentStore(state.SQLiteContentDSN(filepath.Join(dir, "content.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = content.Close() })

	svc := studio.New(studio.Stores{
		Sessions:    state.NewSessionStore(dir),
		History:     state.NewHistoryStore(dir),
		Canvas:      state.NewCanvasStore(dir),
		Content:     content,
		Attachments: state.NewAttachmentStore(dir),
	})
	reg := dispatch.NewRegistry()
	svc.RegisterHandlers(reg)
	gw := gateway.New(reg, 2)
	gw.Start(context.Background())
	t.Cleanup(gw.Stop)

	return &fixture{srv: NewServer(svc, gw, opts), svc: svc}
}

// do sends a JSON request and returns the recorder.
func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func (f *fixture) create(t *testing.T) types.CompositionID {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/compositions", map[string]string{"name": "Launch page"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[studio.Snapshot](t, w).Composition.ID
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t, Options{})
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestCompositionEndpoints(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)

	w := f.do(t, http.MethodGet, "/api/compositions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]types.Composition](t, w)
	require.Len(t, list, 1)
	require.Equal(t, id, list[0].ID)

	w = f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/messages", map[string]any{"role": "user", "content": "Make a hero"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeBody[studio.Snapshot](t, w)
	require.Len(t, snap.Compose.CurrentMessages, 1)

	w = f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/advance", map[string]string{"step": "hero-scaffolding"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, types.StepHeroScaffolding, decodeBody[studio.Snapshot](t, w).State.Step)

	w = f.do(t, http.MethodPut, "/api/compositions/"+string(id)+"/view", map[string]string{"view": "history"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, types.ViewHistory, decodeBody[studio.Snapshot](t, w).Compose.ActiveView)

	w = f.do(t, http.MethodGet, "/api/compositions/"+string(id)+"/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decodeBody[[]types.ConversationHistory](t, w)
	require.Len(t, history, 1)
	require.Equal(t, types.HistoryStateAdvanced, history[0].Action)

	w = f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, types.StepInitial, decodeBody[studio.Snapshot](t, w).State.Step)

	w = f.do(t, http.MethodDelete, "/api/compositions/"+string(id), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/api/compositions/"+string(id), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatusCodes(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)
	base := "/api/compositions/" + string(id)

	w := f.do(t, http.MethodPost, base+"/advance", map[string]string{"step": "complete"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_transition", decodeBody[errorResponse](t, w).Kind)

	w = f.do(t, http.MethodPost, base+"/messages", map[string]any{"role": "robot", "content": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation", decodeBody[errorResponse](t, w).Kind)

	w = f.do(t, http.MethodPost, base+"/disambiguate", map[string]string{"message_id": "nope", "option_id": "a"})
	require.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, base+"/advance", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "request", decodeBody[errorResponse](t, rec).Kind)
}

func TestOversizedBodyRejected(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)

	body := `{"role":"user","content":"` + strings.Repeat("x", maxJSONBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/compositions/"+string(id)+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "request", decodeBody[errorResponse](t, rec).Kind)

	snap, err := f.svc.Snapshot(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, snap.Compose.CurrentMessages)
}

func TestDisambiguateEndpoint(t *testing.T) {
	f := setupServer(t, Options{})
	ctx := context.Background()
	id := f.create(t)

	_, err := f.svc.Advance(ctx, id, types.StepHeroScaffolding)
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, id, types.StepAwaitingDisambiguation)
	require.NoError(t, err)
	msg := compose.NewMessage(types.RoleAgent, "Which one?")
	msg.Disambiguation = []types.DisambiguationOption{{
		ID:          "opt-a",
		Label:       "Centered",
		Confidence:  0.9,
		PreviewData: types.ComponentPreview{Type: types.ComponentHero, Data: &types.HeroData{Title: "Fresh bread daily"}},
	}}
	_, err = f.svc.SendMessage(ctx, id, msg)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/disambiguate", map[string]string{"message_id": string(msg.ID), "option_id": "opt-a"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeBody[studio.Snapshot](t, w)
	require.Equal(t, types.StepHeroCreated, snap.State.Step)
	require.Len(t, snap.Components, 1)
	require.Equal(t, "Fresh bread daily", snap.Components[0].Data.(*types.HeroData).Title)
}

func TestInvokeActionEndpoint(t *testing.T) {
	f := setupServer(t, Options{})
	ctx := context.Background()
	id := f.create(t)

	msg := compose.NewMessage(types.RoleAgent, "Shall we begin?")
	msg.Actions = []types.MessageAction{
		{ID: "start", Label: "Start", Kind: types.ActionButton, Command: "advance:hero-scaffolding"},
		{ID: "bad", Label: "Skip ahead", Kind: types.ActionButton, Command: "advance:complete"},
	}
	_, err := f.svc.SendMessage(ctx, id, msg)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/actions", map[string]string{"message_id": string(msg.ID), "action_id": "start"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[invokeActionResponse](t, w)
	require.NotEmpty(t, resp.RunID)
	require.Equal(t, 1, resp.Attempts)
	require.Equal(t, types.StepHeroScaffolding, resp.Snapshot.State.Step)

	w = f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/actions", map[string]string{"message_id": string(msg.ID), "action_id": "bad"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/compositions/"+string(id)+"/actions", map[string]string{"message_id": string(msg.ID), "action_id": "missing"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestComponentEndpoints(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)
	base := "/api/compositions/" + string(id) + "/components"

	w := f.do(t, http.MethodPost, base, map[string]any{
		"type":    "cta",
		"data":    map[string]any{"title": "Order now", "button_text": "Go", "button_url": "https://example.com"},
		"visible": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decodeBody[studio.Snapshot](t, w)
	require.Len(t, snap.Components, 1)
	cid := string(snap.Components[0].ID)

	w = f.do(t, http.MethodPatch, base+"/"+cid, map[string]any{"visible": false, "position": map[string]float64{"x": 1, "y": 2}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decodeBody[studio.Snapshot](t, w)
	require.False(t, snap.Components[0].Visible)
	require.Equal(t, types.Position{X: 1, Y: 2}, snap.Components[0].Position)

	w = f.do(t, http.MethodPatch, base+"/"+cid, map[string]any{"data": map[string]any{"title": "Order today"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation", decodeBody[errorResponse](t, w).Kind)

	w = f.do(t, http.MethodPatch, base+"/missing", map[string]any{"visible": true})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]types.PageComponent](t, w), 1)

	w = f.do(t, http.MethodDelete, base+"/"+cid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decodeBody[studio.Snapshot](t, w).Components)
}

func TestContentEndpoints(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)

	w := f.do(t, http.MethodPost, "/api/content/models", map[string]any{
		"composition_id": id,
		"name":           "Blog post",
		"fields": []map[string]any{
			{"name": "title", "type": "text", "required": true},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	model := decodeBody[modelResponse](t, w).Model
	require.Len(t, model.Fields, 1)

	entries := "/api/content/models/" + string(model.ID) + "/entries"
	w = f.do(t, http.MethodPost, entries, map[string]any{"composition_id": id, "data": map[string]any{}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeBody[errorResponse](t, w)
	require.Equal(t, "schema", resp.Kind)
	require.Equal(t, "title", resp.Violations[0].Field)

	w = f.do(t, http.MethodPost, entries, map[string]any{"composition_id": id, "data": map[string]any{"title": "Hello"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decodeBody[entryResponse](t, w).Entry

	w = f.do(t, http.MethodPut, "/api/content/entries/"+string(entry.ID), map[string]any{"composition_id": id, "data": map[string]any{"title": "Hello again"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Hello again", decodeBody[entryResponse](t, w).Entry.Data["title"])

	w = f.do(t, http.MethodGet, entries, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]types.ContentEntry](t, w), 1)

	w = f.do(t, http.MethodPost, "/api/content/models/"+string(model.ID)+"/fields", map[string]any{"name": "views", "type": "number"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, decodeBody[types.ContentModel](t, w).Fields, 2)

	w = f.do(t, http.MethodDelete, "/api/content/models/"+string(model.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/api/content/models/"+string(model.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachmentEndpoints(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Brief\nA bakery landing page"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compositions/"+string(id)+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	att := decodeBody[types.MessageAttachment](t, w)
	require.Equal(t, "notes.md", att.Name)

	req = httptest.NewRequest(http.MethodPost, "/api/compositions/"+string(id)+"/attachments?name=raw.txt", strings.NewReader("plain"))
	w = httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/attachments/"+string(att.ID)+"/raw", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "# Brief\nA bakery landing page", w.Body.String())

	w = f.do(t, http.MethodPut, "/api/attachments/"+string(att.ID)+"/analysis", map[string]any{"summary": "project brief"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "project brief", decodeBody[types.MessageAttachment](t, w).Analysis.Summary)

	w = f.do(t, http.MethodGet, "/api/attachments/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthToken(t *testing.T) {
	f := setupServer(t, Options{AuthToken: "s3cret"})

	w := f.do(t, http.MethodGet, "/api/compositions", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/compositions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, header := range []string{"Bearer s3cre", "Bearer s3cret2", ""} {
		req = httptest.NewRequest(http.MethodGet, "/api/compositions", nil)
		req.Header.Set("Authorization", header)
		rec = httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}

	w = f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupServer(t, Options{Metrics: metrics.New()})
	f.do(t, http.MethodGet, "/health", nil)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `studio_http_requests_total{code="200",method="GET"}`)
}

func TestStreamSendsSnapshotsAndUpdates(t *testing.T) {
	f := setupServer(t, Options{})
	id := f.create(t)

	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/compositions/" + string(id)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first streamEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "snapshot", first.Type)
	require.Equal(t, types.StepInitial, first.Snapshot.State.Step)

	_, err = f.svc.Advance(context.Background(), id, types.StepHeroScaffolding)
	require.NoError(t, err)

	var next streamEvent
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, "update", next.Type)
	require.Equal(t, types.StepHeroScaffolding, next.Snapshot.State.Step)
}

func TestStreamUnknownComposition(t *testing.T) {
	f := setupServer(t, Options{})
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/compositions/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
