package svc

import (
	"context"

	"pasteor/metrics"
	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/util"
)

// userResolver turns an optional author user id into display info,
// falling back to a stored free-text name and finally to "Anonymous".
// Lookups go through the LRU so comment threads and popular-paste lists
// do not hammer the users table.
type userResolver struct {
	db  *db.SQLite
	lru *cache.Users
}

func newUserResolver(sqlDB *db.SQLite, lru *cache.Users) *userResolver {
	return &userResolver{db: sqlDB, lru: lru}
}

func (r *userResolver) lookup(ctx context.Context, id int64) *domain.User {
	if r.lru != nil {
		if user, ok := r.lru.Get(id); ok {
			metrics.CacheHits.WithLabelValues("users").Inc()
			return user
		}
		metrics.CacheMisses.WithLabelValues("users").Inc()
	}
	user, err := r.db.GetUser(ctx, id)
	if err != nil {
		util.Warn().Err(err).Int64("user_id", id).Msg("user lookup failed")
		return nil
	}
	if r.lru != nil {
		// Cache misses too: a detached id stays unresolvable.
		r.lru.Set(id, user)
	}
	return user
}

// displayName resolves the authoritative authorship representation: the
// linked user's name when the comment or paste is identified, the stored
// free-text name otherwise.
func (r *userResolver) displayName(ctx context.Context, userID *int64, storedName string) (name, avatar string) {
	if userID != nil {
		user := r.lookup(ctx, *userID)
		if user == nil {
			return domain.AnonymousName, ""
		}
		return user.DisplayName(), user.AvatarURL
	}
	if storedName == "" {
		return domain.AnonymousName, ""
	}
	return storedName, ""
}
