package domain

import (
	"time"
	"unicode/utf8"
)

const (
	MaxContentBytes  = 524288
	MaxTitleChars    = 200
	MaxLanguageChars = 50

	DefaultLanguage = "plaintext"

	PreviewChars = 100
)

type Paste struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	Title       string     `json:"title,omitempty"`
	Language    string     `json:"language"`
	OwnerUserID *int64     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Views       int64      `json:"views"`
	CreatedByIP string     `json:"-"`
}

type CreateParams struct {
	Content   string
	Title     string
	Language  string
	ExpiresIn string
	ClientIP  string
}

// UpdateParams carries a partial edit; nil fields are left untouched.
type UpdateParams struct {
	Content  *string
	Title    *string
	Language *string
}

type PasteSummary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Language  string     `json:"language"`
	Preview   string     `json:"preview"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Views     int64      `json:"views"`
}

type OwnedQuery struct {
	Page     int
	PageSize int
	Search   string
	Language string
	Sort     SortKey
}

type OwnedPage struct {
	Items      []PasteSummary `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int64          `json:"totalPages"`
}

type UserStats struct {
	TotalPastes       int64   `json:"totalPastes"`
	TotalViews        int64   `json:"totalViews"`
	ActivePastes      int64   `json:"activePastes"`
	MostViewedPasteID *string `json:"mostViewedPasteId,omitempty"`
}

type SortKey int

const (
	SortDate SortKey = iota
	SortViews
	SortTitle
)

// ParseSortKey maps a request value onto the closed sort enumeration.
// Anything unrecognized falls back to date descending.
func ParseSortKey(s string) SortKey {
	switch s {
	case "views":
		return SortViews
	case "title":
		return SortTitle
	default:
		return SortDate
	}
}

func (p *Paste) Summary() PasteSummary {
	return PasteSummary{
		ID:        p.ID,
		Title:     p.Title,
		Language:  p.Language,
		Preview:   Preview(p.Content),
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
		Views:     p.Views,
	}
}

// Preview truncates content to PreviewChars runes with an ellipsis marker.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:PreviewChars]) + "..."
}
