package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/composablestudio/internal/studio"
	"github.com/user/composablestudio/internal/types"
)

// maxUploadBytes caps attachment uploads.
const maxUploadBytes = 20 << 20

func compositionID(r *http.Request) types.CompositionID {
	return types.CompositionID(r.PathValue("id"))
}

// respond writes snap, or the error that prevented it.
func respond(w http.ResponseWriter, r *http.Request, snap *studio.Snapshot, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListCompositions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createCompositionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateComposition(w http.ResponseWriter, r *http.Request) {
	var req createCompositionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetComposition(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), compositionID(r))
	respond(w, r, snap, err)
}

func (s *Server) handleDeleteComposition(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), compositionID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var msg types.ChatMessage
	if err := decode(w, r, &msg); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.SendMessage(r.Context(), compositionID(r), msg)
	respond(w, r, snap, err)
}

type advanceRequest struct {
	Step types.Step `json:"step"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.Advance(r.Context(), compositionID(r), req.Step)
	respond(w, r, snap, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Reset(r.Context(), compositionID(r))
	respond(w, r, snap, err)
}

type disambiguateRequest struct {
	MessageID types.MessageID `json:"message_id"`
	OptionID  string          `json:"option_id"`
}

func (s *Server) handleDisambiguate(w http.ResponseWriter, r *http.Request) {
	var req disambiguateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.ResolveDisambiguation(r.Context(), compositionID(r), req.MessageID, req.OptionID)
	respond(w, r, snap, err)
}

type invokeActionRequest struct {
	MessageID types.MessageID `json:"message_id"`
	ActionID  string          `json:"action_id"`
	Input     string          `json:"input,omitempty"`
}

type invokeActionResponse struct {
	RunID    types.RunID      `json:"run_id"`
	Attempts int              `json:"attempts"`
	Snapshot *studio.Snapshot `json:"snapshot"`
}

func (s *Server) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	var req invokeActionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	id := compositionID(r)

	inv, err := s.svc.PrepareInvocation(ctx, id, req.MessageID, req.ActionID, req.Input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := s.gateway.InvokeAndWait(ctx, inv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.Snapshot(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invokeActionResponse{RunID: run.ID, Attempts: run.Attempts, Snapshot: snap})
}

type setViewRequest struct {
	View types.View `json:"view"`
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req setViewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.SetView(r.Context(), compositionID(r), req.View)
	respond(w, r, snap, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.svc.History(r.Context(), compositionID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.ConversationHistory{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.svc.Transcript(r.Context(), compositionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), compositionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Components)
}

func (s *Server) handleAddComponent(w http.ResponseWriter, r *http.Request) {
	var c types.PageComponent
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.svc.AddComponent(r.Context(), compositionID(r), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

type updateComponentRequest struct {
	Data     json.RawMessage `json:"data,omitempty"`
	Visible  *bool           `json:"visible,omitempty"`
	Position *types.Position `json:"position,omitempty"`
}

func (s *Server) handleUpdateComponent(w http.ResponseWriter, r *http.Request) {
	var req updateComponentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	id := compositionID(r)
	cid := types.ComponentID(r.PathValue("cid"))

	update := studio.ComponentUpdate{Visible: req.Visible, Position: req.Position}
	if len(req.Data) > 0 {
		current, err := s.svc.Component(ctx, id, cid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := types.DecodeComponentData(current.Type, req.Data)
		if err != nil {
			writeError(w, r, &badRequest{reason: err.Error()})
			return
		}
		update.Data = data
	}
	snap, err := s.svc.UpdateComponent(ctx, id, cid, update)
	respond(w, r, snap, err)
}

func (s *Server) handleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.RemoveComponent(r.Context(), compositionID(r), types.ComponentID(r.PathValue("cid")))
	respond(w, r, snap, err)
}

// handleUploadAttachment accepts a multipart form with a "file" part, or a
// raw body named by the "name" query parameter.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var name string
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, r, &badRequest{reason: "missing file part: " + ferr.Error()})
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
	} else {
		name = r.URL.Query().Get("name")
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, r, &badRequest{reason: "read upload: " + err.Error()})
		return
	}

	att, err := s.svc.UploadAttachment(r.Context(), compositionID(r), name, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	meta, _, err := s.svc.Attachment(r.Context(), types.AttachmentID(r.PathValue("aid")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleGetAttachmentRaw(w http.ResponseWriter, r *http.Request) {
	meta, data, err := s.svc.Attachment(r.Context(), types.AttachmentID(r.PathValue("aid")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(meta.Name))
	_, _ = w.Write(data)
}

func (s *Server) handleAnalyzeAttachment(w http.ResponseWriter, r *http.Request) {
	var analysis types.AttachmentAnalysis
	if err := decode(w, r, &analysis); err != nil {
		writeError(w, r, err)
		return
	}
	att, err := s.svc.AnalyzeAttachment(r.Context(), types.AttachmentID(r.PathValue("aid")), analysis)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}
