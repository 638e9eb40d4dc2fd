package domain

import "time"

const (
	MaxCommentChars = 2000

	AnonymousName = "Anonymous"
)

type Comment struct {
	ID           int64
	PasteID      string
	AuthorUserID *int64
	AuthorName   string
	Content      string
	CreatedAt    time.Time
}

// CommentView is a comment as rendered for a specific caller. AuthorName is
// resolved at read time: the linked user's name when the comment is
// identified, the stored free-text name otherwise, "Anonymous" as the final
// fallback.
type CommentView struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	IsOwner      bool      `json:"isOwner"`
}

type CreateCommentParams struct {
	PasteID    string
	Content    string
	AuthorName string
}

type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DisplayName is the user's public name as shown on comments and popular
// paste entries.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return AnonymousName
	}
	return u.Name
}
