package svc

import (
	"context"
	"encoding/json"
	"time"

	"pasteor/cfg"
	"pasteor/metrics"
	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/util"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	topLanguagesLimit  = 5
	popularPastesLimit = 5

	publicStatsKey = "stats:public"
)

type PublicStats struct {
	TotalPastes   int64              `json:"totalPastes"`
	TotalUsers    int64              `json:"totalUsers"`
	TopLanguages  []db.LanguageCount `json:"topLanguages"`
	PopularPastes []PopularPaste     `json:"popularPastes"`
}

type PopularPaste struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Language   string `json:"language"`
	Views      int64  `json:"views"`
	AuthorName string `json:"authorName"`
}

// Stats composes paste and user data into the public summary. Reads only;
// popular pastes never gain views from being listed here.
type Stats struct {
	db  *db.SQLite
	rdb *db.Redis
	res *userResolver
	ttl time.Duration
	now func() time.Time
	sf  singleflight.Group
}

func NewStats(sqlDB *db.SQLite, rdb *db.Redis, users *cache.Users, c *cfg.Cfg) *Stats {
	if sqlDB == nil || c == nil {
		panic("stats service: nil dependency (sqlDB or cfg)")
	}
	return &Stats{
		db:  sqlDB,
		rdb: rdb,
		res: newUserResolver(sqlDB, users),
		ttl: c.StatsCacheTTL,
		now: time.Now,
	}
}

func (s *Stats) Public(ctx context.Context) (*PublicStats, error) {
	if s.rdb != nil {
		if data, err := s.rdb.CacheGet(ctx, publicStatsKey); err == nil && data != nil {
			var cached PublicStats
			if err := json.Unmarshal(data, &cached); err == nil {
				metrics.CacheHits.WithLabelValues("stats").Inc()
				return &cached, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("stats").Inc()
	}
	// Collapse a stampede of stats requests into one computation.
	v, err, _ := s.sf.Do(publicStatsKey, func() (interface{}, error) {
		return s.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PublicStats), nil
}

func (s *Stats) compute(ctx context.Context) (*PublicStats, error) {
	stats := &PublicStats{
		TopLanguages:  []db.LanguageCount{},
		PopularPastes: []PopularPaste{},
	}
	var popular []domain.Paste

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.db.CountPastes(gctx)
		stats.TotalPastes = n
		return err
	})
	g.Go(func() error {
		n, err := s.db.CountUsers(gctx)
		stats.TotalUsers = n
		return err
	})
	g.Go(func() error {
		langs, err := s.db.TopLanguages(gctx, topLanguagesLimit)
		if langs != nil {
			stats.TopLanguages = langs
		}
		return err
	})
	g.Go(func() error {
		pastes, err := s.db.PopularPastes(gctx, popularPastesLimit, s.now())
		popular = pastes
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range popular {
		name, _ := s.res.displayName(ctx, popular[i].OwnerUserID, "")
		stats.PopularPastes = append(stats.PopularPastes, PopularPaste{
			ID:         popular[i].ID,
			Title:      popular[i].Title,
			Language:   popular[i].Language,
			Views:      popular[i].Views,
			AuthorName: name,
		})
	}

	if s.rdb != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.rdb.CacheSet(ctx, publicStatsKey, data, s.ttl); err != nil {
				util.Warn().Err(err).Msg("failed to cache public stats")
			}
		}
	}
	return stats, nil
}
