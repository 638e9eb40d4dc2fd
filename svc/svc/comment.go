package svc

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"pasteor/metrics"
	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/util"
)

type Comment struct {
	db  *db.SQLite
	res *userResolver
	now func() time.Time
}

func NewComment(sqlDB *db.SQLite, users *cache.Users) *Comment {
	if sqlDB == nil {
		panic("comment service: nil db")
	}
	return &Comment{
		db:  sqlDB,
		res: newUserResolver(sqlDB, users),
		now: time.Now,
	}
}

// List returns the thread for a paste, oldest first. Comment visibility
// is not gated by paste liveness: threads on expired pastes stay
// readable. A paste that never existed simply has an empty thread.
func (c *Comment) List(ctx context.Context, pasteID string, ident *domain.Identity) ([]domain.CommentView, error) {
	comments, err := c.db.ListComments(ctx, pasteID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.CommentView, 0, len(comments))
	for i := range comments {
		views = append(views, c.view(ctx, &comments[i], ident))
	}
	return views, nil
}

func (c *Comment) Create(ctx context.Context, params domain.CreateCommentParams, ident *domain.Identity) (*domain.CommentView, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, domain.ErrContentRequired
	}
	if utf8.RuneCountInString(params.Content) > domain.MaxCommentChars {
		return nil, domain.ErrCommentTooLong
	}
	// Existence only; commenting on an expired paste is allowed.
	exists, err := c.db.PasteExists(ctx, params.PasteID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrPasteNotFound
	}

	comment := &domain.Comment{
		PasteID:   params.PasteID,
		Content:   params.Content,
		CreatedAt: c.now(),
	}
	if ident != nil {
		uid := ident.UserID
		comment.AuthorUserID = &uid
		// The free-text name is ignored for identified authors.
	} else {
		name := strings.TrimSpace(params.AuthorName)
		if name == "" {
			name = domain.AnonymousName
		}
		comment.AuthorName = name
	}
	if err := c.db.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	metrics.CommentCreated.Inc()
	view := c.view(ctx, comment, ident)
	return &view, nil
}

// Delete removes a comment, author only. Anonymous comments have no
// author identity and can never be deleted through this operation, no
// matter what display name the caller claims.
func (c *Comment) Delete(ctx context.Context, id int64, ident *domain.Identity) error {
	if ident == nil {
		return domain.ErrAuthRequired
	}
	comment, err := c.db.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !domain.IsOwner(comment.AuthorUserID, ident) {
		return domain.ErrForbidden
	}
	if err := c.db.DeleteComment(ctx, id); err != nil {
		return err
	}
	metrics.CommentDeleted.Inc()
	util.Info().Int64("comment_id", id).Msg("comment deleted")
	return nil
}

func (c *Comment) view(ctx context.Context, comment *domain.Comment, ident *domain.Identity) domain.CommentView {
	name, avatar := c.res.displayName(ctx, comment.AuthorUserID, comment.AuthorName)
	return domain.CommentView{
		ID:           comment.ID,
		Content:      comment.Content,
		CreatedAt:    comment.CreatedAt,
		AuthorName:   name,
		AuthorAvatar: avatar,
		IsOwner:      domain.IsOwner(comment.AuthorUserID, ident),
	}
}
