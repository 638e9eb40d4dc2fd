package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"pasteor/cfg"
	"pasteor/pkg/domain"
	"pasteor/svc/svc"
	"pasteor/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// maxPasteBody bounds create and update request bodies. JSON string
// escaping can expand content up to six bytes per input byte in the
// unicode escape form, so a max-size content field alone can approach
// 3MB on the wire; the rest covers the title, language and expiry
// fields.
const maxPasteBody = domain.MaxContentBytes*6 + 4*1024

type Hdl struct {
	paste    *svc.Paste
	comments *svc.Comment
	stats    *svc.Stats
	cfg      *cfg.Cfg
}

type CreatePasteReq struct {
	Content   string `json:"content"`
	Title     string `json:"title,omitempty"`
	Language  string `json:"language,omitempty"`
	ExpiresIn string `json:"expiresIn,omitempty"`
}

type UpdatePasteReq struct {
	Content  *string `json:"content,omitempty"`
	Title    *string `json:"title,omitempty"`
	Language *string `json:"language,omitempty"`
}

// PasteResp is the full paste descriptor: the stored row plus the
// caller-dependent and derived fields.
type PasteResp struct {
	*domain.Paste
	URL          string `json:"url"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	IsOwner      bool   `json:"isOwner"`
}

func (h *Hdl) pasteResp(r *http.Request, paste *domain.Paste) PasteResp {
	name, avatar := h.paste.Author(r.Context(), paste)
	return PasteResp{
		Paste:        paste,
		URL:          h.cfg.BaseURL + "/api/pastes/" + paste.ID,
		AuthorName:   name,
		AuthorAvatar: avatar,
		IsOwner:      domain.IsOwner(paste.OwnerUserID, IdentityFrom(r)),
	}
}

// checkJSONBody enforces the Content-Type and Content-Length guards and
// caps the body reader. Returns false after writing the error response.
func checkJSONBody(w http.ResponseWriter, r *http.Request, limit int64) bool {
	log := hlog.FromRequest(r)
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", contentType).Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(domain.ErrResp{Error: "expected Content-Type: application/json"})
		return false
	}
	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, r, domain.ErrInvalidRequest)
			return false
		}
		if cl > limit {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, r, domain.ErrContentTooLarge)
			return false
		}
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, r, domain.ErrInvalidRequest)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	log := hlog.FromRequest(r)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request body")
		}
		writeErr(w, r, domain.ErrInvalidRequest)
		return false
	}
	return true
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	if !checkJSONBody(w, r, maxPasteBody) {
		return
	}
	var req CreatePasteReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ident := IdentityFrom(r)
	params := domain.CreateParams{
		Content:   req.Content,
		Title:     req.Title,
		Language:  req.Language,
		ExpiresIn: req.ExpiresIn,
		ClientIP:  util.RealIP(r, h.cfg.TrustedProxies),
	}
	paste, err := h.paste.Create(r.Context(), params, ident)
	if err != nil {
		log.Warn().Err(err).Msg("paste create rejected")
		writeErr(w, r, err)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Bool("owned", ident != nil).
		Str("expires_in", req.ExpiresIn).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(h.pasteResp(r, paste))
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	id := chi.URLParam(r, "id")
	paste, err := h.paste.Get(r.Context(), id, IdentityFrom(r))
	if err != nil {
		if !errors.Is(err, domain.ErrPasteNotFound) {
			log.Error().Err(err).Str("paste_id", id).Msg("get failed")
		}
		writeErr(w, r, err)
		return
	}
	log.Info().
		Str("paste_id", id).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Int64("views", paste.Views).
		Msg("paste retrieved")
	json.NewEncoder(w).Encode(h.pasteResp(r, paste))
}

func (h *Hdl) GetPasteRaw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content, err := h.paste.GetRaw(r.Context(), id, IdentityFrom(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (h *Hdl) UpdatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	id := chi.URLParam(r, "id")
	if !checkJSONBody(w, r, maxPasteBody) {
		return
	}
	var req UpdatePasteReq
	if !decodeJSON(w, r, &req) {
		return
	}
	params := domain.UpdateParams{
		Content:  req.Content,
		Title:    req.Title,
		Language: req.Language,
	}
	paste, err := h.paste.Update(r.Context(), id, params, IdentityFrom(r))
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("paste update rejected")
		writeErr(w, r, err)
		return
	}
	log.Info().Str("paste_id", id).Msg("paste updated")
	json.NewEncoder(w).Encode(h.pasteResp(r, paste))
}

func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	id := chi.URLParam(r, "id")
	if err := h.paste.Delete(r.Context(), id, IdentityFrom(r)); err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("paste delete rejected")
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hdl) RecentPastes(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErr(w, r, domain.ErrInvalidRequest)
			return
		}
		limit = n
	}
	summaries, err := h.paste.ListRecent(r.Context(), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("recent listing failed")
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(summaries)
}

func (h *Hdl) PublicStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Public(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("public stats failed")
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (h *Hdl) MyPastes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.OwnedQuery{
		Page:     intQuery(q.Get("page"), 1),
		PageSize: intQuery(q.Get("pageSize"), 10),
		Search:   q.Get("search"),
		Language: q.Get("language"),
		Sort:     domain.ParseSortKey(q.Get("sortBy")),
	}
	page, err := h.paste.ListOwned(r.Context(), IdentityFrom(r), query)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(page)
}

func (h *Hdl) MyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.paste.UserStats(r.Context(), IdentityFrom(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (h *Hdl) MyLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.paste.UserLanguages(r.Context(), IdentityFrom(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(langs)
}

func (h *Hdl) Me(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFrom(r)
	if ident == nil {
		writeErr(w, r, domain.ErrAuthRequired)
		return
	}
	json.NewEncoder(w).Encode(ident)
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		resp = domain.ToResp(domain.ErrInternalServer)
		util.Error().
			Err(err).
			Str("request_id", util.GetRequestID(r.Context())).
			Msg("internal error with detailed info")
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
