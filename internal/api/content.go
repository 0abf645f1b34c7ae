package api

import (
	"net/http"

	"github.com/user/composablestudio/internal/studio"
	"github.com/user/composablestudio/internal/types"
)

func modelID(r *http.Request) types.ModelID {
	return types.ModelID(r.PathValue("mid"))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.ListContentModels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

type createModelRequest struct {
	CompositionID types.CompositionID  `json:"composition_id"`
	Name          string               `json:"name"`
	Fields        []types.ContentField `json:"fields"`
}

type modelResponse struct {
	Model    *types.ContentModel `json:"model"`
	Snapshot *studio.Snapshot    `json:"snapshot"`
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	model, snap, err := s.svc.CreateContentModel(r.Context(), req.CompositionID, types.ContentModel{Name: req.Name, Fields: req.Fields})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, modelResponse{Model: model, Snapshot: snap})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	model, err := s.svc.ContentModel(r.Context(), modelID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteContentModel(r.Context(), modelID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	var field types.ContentField
	if err := decode(w, r, &field); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := s.svc.AddContentField(r.Context(), modelID(r), field)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListContentEntries(r.Context(), modelID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type entryRequest struct {
	CompositionID types.CompositionID `json:"composition_id"`
	Data          map[string]any      `json:"data"`
}

type entryResponse struct {
	Entry    *types.ContentEntry `json:"entry"`
	Snapshot *studio.Snapshot    `json:"snapshot"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, snap, err := s.svc.CreateContentEntry(r.Context(), req.CompositionID, modelID(r), req.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{Entry: entry, Snapshot: snap})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.ContentEntry(r.Context(), types.EntryID(r.PathValue("eid")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, snap, err := s.svc.UpdateContentEntry(r.Context(), req.CompositionID, types.EntryID(r.PathValue("eid")), req.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: entry, Snapshot: snap})
}
