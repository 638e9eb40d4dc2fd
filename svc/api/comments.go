package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pasteor/pkg/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const maxCommentBody = 64 * 1024

type CreateCommentReq struct {
	PasteID    string `json:"pasteId"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName,omitempty"`
}

func (h *Hdl) ListComments(w http.ResponseWriter, r *http.Request) {
	pasteID := chi.URLParam(r, "pasteId")
	views, err := h.comments.List(r.Context(), pasteID, IdentityFrom(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", pasteID).Msg("comment listing failed")
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(views)
}

func (h *Hdl) CreateComment(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	if !checkJSONBody(w, r, maxCommentBody) {
		return
	}
	var req CreateCommentReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PasteID == "" {
		writeErr(w, r, domain.ErrInvalidRequest)
		return
	}
	params := domain.CreateCommentParams{
		PasteID:    req.PasteID,
		Content:    req.Content,
		AuthorName: req.AuthorName,
	}
	view, err := h.comments.Create(r.Context(), params, IdentityFrom(r))
	if err != nil {
		log.Warn().Err(err).Str("paste_id", req.PasteID).Msg("comment rejected")
		writeErr(w, r, err)
		return
	}
	log.Info().Str("paste_id", req.PasteID).Int64("comment_id", view.ID).Msg("comment created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(view)
}

func (h *Hdl) DeleteComment(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeErr(w, r, domain.ErrCommentNotFound)
		return
	}
	if err := h.comments.Delete(r.Context(), id, IdentityFrom(r)); err != nil {
		log.Warn().Err(err).Int64("comment_id", id).Msg("comment delete rejected")
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
