package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound    = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrCommentNotFound  = NewErr("COMMENT_NOT_FOUND", "comment not found", http.StatusNotFound)
	ErrContentRequired  = NewErr("CONTENT_REQUIRED", "content is required", http.StatusBadRequest)
	ErrContentTooLarge  = NewErr("CONTENT_TOO_LARGE", "content too large (max 512KB)", http.StatusBadRequest)
	ErrTitleTooLong     = NewErr("TITLE_TOO_LONG", "title too long (max 200 characters)", http.StatusBadRequest)
	ErrLanguageInvalid  = NewErr("LANGUAGE_INVALID", "language must be 1-50 characters", http.StatusBadRequest)
	ErrCommentTooLong   = NewErr("COMMENT_TOO_LONG", "comment too long (max 2000 characters)", http.StatusBadRequest)
	ErrInvalidRequest   = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrAuthRequired     = NewErr("AUTH_REQUIRED", "authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewErr("FORBIDDEN", "forbidden", http.StatusForbidden)
	ErrIDSpaceExhausted = NewErr("ID_SPACE_EXHAUSTED", "id generation failed", http.StatusInternalServerError)
	ErrInternalServer   = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error string `json:"error"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: e.Msg}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: e.Msg}
	}
	return ErrResp{Error: "internal error"}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
