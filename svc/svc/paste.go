package svc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pasteor/cfg"
	"pasteor/metrics"
	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// maxIDAttempts bounds the collision retry loop. The id space holds
// 62^8 ids, so hitting this many consecutive collisions means the space
// is effectively exhausted and the create fails as a server error.
const maxIDAttempts = 64

const (
	recentMaxLimit   = 50
	ownedMaxPageSize = 100
)

type Paste struct {
	db  *db.SQLite
	rdb *db.Redis
	res *userResolver
	cfg *cfg.Cfg
	now func() time.Time
}

func NewPaste(sqlDB *db.SQLite, rdb *db.Redis, users *cache.Users, c *cfg.Cfg) *Paste {
	if sqlDB == nil || c == nil {
		panic("paste service: nil dependency (sqlDB or cfg)")
	}
	return &Paste{
		db:  sqlDB,
		rdb: rdb,
		res: newUserResolver(sqlDB, users),
		cfg: c,
		now: time.Now,
	}
}

// Author resolves the paste's author display info; anonymous pastes
// render as "Anonymous".
func (p *Paste) Author(ctx context.Context, paste *domain.Paste) (name, avatar string) {
	return p.res.displayName(ctx, paste.OwnerUserID, "")
}

func (p *Paste) Create(ctx context.Context, params domain.CreateParams, ident *domain.Identity) (*domain.Paste, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, domain.ErrContentRequired
	}
	if len(params.Content) > domain.MaxContentBytes {
		return nil, domain.ErrContentTooLarge
	}
	title := norm.NFC.String(params.Title)
	if utf8.RuneCountInString(title) > domain.MaxTitleChars {
		return nil, domain.ErrTitleTooLong
	}
	language := norm.NFC.String(strings.TrimSpace(params.Language))
	if language == "" {
		language = domain.DefaultLanguage
	}
	if utf8.RuneCountInString(language) > domain.MaxLanguageChars {
		return nil, domain.ErrLanguageInvalid
	}

	now := p.now()
	paste := &domain.Paste{
		Content:     params.Content,
		Title:       title,
		Language:    language,
		CreatedAt:   now,
		ExpiresAt:   domain.ResolveExpiry(params.ExpiresIn, now),
		Views:       0,
		CreatedByIP: params.ClientIP,
	}
	if ident != nil {
		uid := ident.UserID
		paste.OwnerUserID = &uid
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := util.NewID()
		if err != nil {
			return nil, errors.Wrap(err, "gen id")
		}
		paste.ID = id
		err = p.db.InsertPaste(ctx, paste)
		if err == nil {
			metrics.PasteCreated.Inc()
			p.invalidateAggregates(ctx)
			return paste, nil
		}
		if errors.Is(err, db.ErrDuplicateID) {
			metrics.IDCollisions.Inc()
			util.Warn().Str("id", id).Int("attempt", attempt+1).Msg("paste id collision, regenerating")
			continue
		}
		return nil, errors.Wrap(err, "create paste")
	}
	return nil, domain.ErrIDSpaceExhausted
}

// Get returns a live paste. Reads by anyone but the owner count as a
// view; the increment happens in the store in a single statement, so
// concurrent viewers never lose updates.
func (p *Paste) Get(ctx context.Context, id string, ident *domain.Identity) (*domain.Paste, error) {
	paste, err := p.db.GetPaste(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsLive(paste.ExpiresAt, p.now()) {
		// Expired pastes are indistinguishable from missing ones.
		return nil, domain.ErrPasteNotFound
	}
	if !domain.IsOwner(paste.OwnerUserID, ident) {
		views, err := p.db.IncrementViews(ctx, paste.ID)
		if err != nil {
			if errors.Is(err, domain.ErrPasteNotFound) {
				// Lost a race with a delete.
				return nil, domain.ErrPasteNotFound
			}
			return nil, errors.Wrap(err, "count view")
		}
		paste.Views = views
	}
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

// GetRaw serves content only; the view accounting rule is the same as Get.
func (p *Paste) GetRaw(ctx context.Context, id string, ident *domain.Identity) (string, error) {
	paste, err := p.Get(ctx, id, ident)
	if err != nil {
		return "", err
	}
	return paste.Content, nil
}

func (p *Paste) Update(ctx context.Context, id string, params domain.UpdateParams, ident *domain.Identity) (*domain.Paste, error) {
	if ident == nil {
		return nil, domain.ErrAuthRequired
	}
	paste, err := p.db.GetPaste(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsLive(paste.ExpiresAt, p.now()) {
		return nil, domain.ErrPasteNotFound
	}
	if !domain.IsOwner(paste.OwnerUserID, ident) {
		return nil, domain.ErrForbidden
	}

	if params.Content != nil {
		if strings.TrimSpace(*params.Content) == "" {
			return nil, domain.ErrContentRequired
		}
		if len(*params.Content) > domain.MaxContentBytes {
			return nil, domain.ErrContentTooLarge
		}
		paste.Content = *params.Content
	}
	if params.Title != nil {
		title := norm.NFC.String(*params.Title)
		if utf8.RuneCountInString(title) > domain.MaxTitleChars {
			return nil, domain.ErrTitleTooLong
		}
		params.Title = &title
		paste.Title = title
	}
	if params.Language != nil {
		language := norm.NFC.String(strings.TrimSpace(*params.Language))
		if language == "" || utf8.RuneCountInString(language) > domain.MaxLanguageChars {
			return nil, domain.ErrLanguageInvalid
		}
		params.Language = &language
		paste.Language = language
	}

	if err := p.db.UpdatePaste(ctx, id, params); err != nil {
		return nil, err
	}
	metrics.PasteUpdated.Inc()
	p.invalidateAggregates(ctx)
	return paste, nil
}

func (p *Paste) Delete(ctx context.Context, id string, ident *domain.Identity) error {
	if ident == nil {
		return domain.ErrAuthRequired
	}
	paste, err := p.db.GetPaste(ctx, id)
	if err != nil {
		return err
	}
	if !domain.IsOwner(paste.OwnerUserID, ident) {
		return domain.ErrForbidden
	}
	// Owners may delete expired pastes; nothing else removes stale rows.
	if err := p.db.DeletePaste(ctx, id); err != nil {
		return err
	}
	metrics.PasteDeleted.Inc()
	p.invalidateAggregates(ctx)
	util.Info().Str("id", id).Msg("paste deleted")
	return nil
}

func (p *Paste) ListRecent(ctx context.Context, limit int) ([]domain.PasteSummary, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > recentMaxLimit {
		limit = recentMaxLimit
	}
	key := fmt.Sprintf("recent:%d", limit)
	if p.rdb != nil {
		if data, err := p.rdb.CacheGet(ctx, key); err == nil && data != nil {
			var cached []domain.PasteSummary
			if err := json.Unmarshal(data, &cached); err == nil {
				metrics.CacheHits.WithLabelValues("recent").Inc()
				return cached, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("recent").Inc()
	}
	pastes, err := p.db.ListRecent(ctx, limit, p.now())
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.PasteSummary, 0, len(pastes))
	for i := range pastes {
		summaries = append(summaries, pastes[i].Summary())
	}
	if p.rdb != nil {
		if data, err := json.Marshal(summaries); err == nil {
			if err := p.rdb.CacheSet(ctx, key, data, p.cfg.StatsCacheTTL); err != nil {
				util.Warn().Err(err).Msg("failed to cache recent listing")
			}
		}
	}
	return summaries, nil
}

func (p *Paste) ListOwned(ctx context.Context, ident *domain.Identity, q domain.OwnedQuery) (*domain.OwnedPage, error) {
	if ident == nil {
		return nil, domain.ErrAuthRequired
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if q.PageSize > ownedMaxPageSize {
		q.PageSize = ownedMaxPageSize
	}
	offset := (q.Page - 1) * q.PageSize
	pastes, total, err := p.db.ListOwned(ctx, ident.UserID, q, offset, q.PageSize)
	if err != nil {
		return nil, err
	}
	items := make([]domain.PasteSummary, 0, len(pastes))
	for i := range pastes {
		items = append(items, pastes[i].Summary())
	}
	return &domain.OwnedPage{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + int64(q.PageSize) - 1) / int64(q.PageSize),
	}, nil
}

func (p *Paste) UserStats(ctx context.Context, ident *domain.Identity) (*domain.UserStats, error) {
	if ident == nil {
		return nil, domain.ErrAuthRequired
	}
	return p.db.UserStats(ctx, ident.UserID, p.now())
}

func (p *Paste) UserLanguages(ctx context.Context, ident *domain.Identity) ([]string, error) {
	if ident == nil {
		return nil, domain.ErrAuthRequired
	}
	langs, err := p.db.UserLanguages(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if langs == nil {
		langs = []string{}
	}
	return langs, nil
}

// invalidateAggregates drops cached aggregate views after a paste
// mutation. Best effort: the entries also expire on their own TTL.
func (p *Paste) invalidateAggregates(ctx context.Context) {
	if p.rdb == nil {
		return
	}
	keys := make([]string, 0, recentMaxLimit+1)
	keys = append(keys, publicStatsKey)
	for i := 1; i <= recentMaxLimit; i++ {
		keys = append(keys, fmt.Sprintf("recent:%d", i))
	}
	if err := p.rdb.Invalidate(ctx, keys...); err != nil {
		util.Warn().Err(err).Msg("failed to invalidate aggregate caches")
	}
}
