package svc

import (
	"context"
	"testing"
	"time"

	"pasteor/pkg/domain"
)

func TestPublicStats(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	stats := NewStats(sqlDB, nil, newTestUsers(t), newTestCfg())
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }
	stats.now = p.now

	alice := registerUser(t, sqlDB, "alice@example.com", "Alice")

	hot := mustCreate(t, p, domain.CreateParams{Content: "popular", Title: "Hot", Language: "go"}, alice)
	mustCreate(t, p, domain.CreateParams{Content: "meh", Language: "go"}, nil)
	mustCreate(t, p, domain.CreateParams{Content: "quiet", Language: "python"}, nil)
	mustCreate(t, p, domain.CreateParams{Content: "stale", Language: "ada", ExpiresIn: "1h"}, nil)

	for i := 0; i < 3; i++ {
		if _, err := p.Get(ctx, hot.ID, nil); err != nil {
			t.Fatalf("warm views: %v", err)
		}
	}

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	stats.now = p.now
	got, err := stats.Public(ctx)
	if err != nil {
		t.Fatalf("public stats: %v", err)
	}

	// Totals count every row, expired ones included.
	if got.TotalPastes != 4 {
		t.Errorf("total pastes = %d, want 4", got.TotalPastes)
	}
	if got.TotalUsers != 1 {
		t.Errorf("total users = %d, want 1", got.TotalUsers)
	}

	if len(got.TopLanguages) != 3 {
		t.Fatalf("top languages: %v", got.TopLanguages)
	}
	if got.TopLanguages[0].Language != "go" || got.TopLanguages[0].Count != 2 {
		t.Errorf("go should lead with 2, got %+v", got.TopLanguages[0])
	}
	// Ties break alphabetically.
	if got.TopLanguages[1].Language != "ada" || got.TopLanguages[2].Language != "python" {
		t.Errorf("tie order wrong: %+v", got.TopLanguages[1:])
	}

	// Popular pastes are live only and most-viewed first.
	if len(got.PopularPastes) != 3 {
		t.Fatalf("popular pastes should exclude the expired one: %+v", got.PopularPastes)
	}
	if got.PopularPastes[0].ID != hot.ID || got.PopularPastes[0].Views != 3 {
		t.Errorf("most viewed first: %+v", got.PopularPastes[0])
	}
	if got.PopularPastes[0].AuthorName != "Alice" {
		t.Errorf("author name not resolved: %q", got.PopularPastes[0].AuthorName)
	}
	if got.PopularPastes[1].AuthorName != domain.AnonymousName {
		t.Errorf("anonymous paste should render as %q, got %q", domain.AnonymousName, got.PopularPastes[1].AuthorName)
	}

	// Listing in the stats feed is not a view.
	stored, err := sqlDB.GetPaste(ctx, hot.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Views != 3 {
		t.Errorf("stats read must not count views: %d", stored.Views)
	}
}

func TestPublicStatsEmpty(t *testing.T) {
	sqlDB := newTestDB(t)
	stats := NewStats(sqlDB, nil, newTestUsers(t), newTestCfg())

	got, err := stats.Public(context.Background())
	if err != nil {
		t.Fatalf("public stats on empty db: %v", err)
	}
	if got.TotalPastes != 0 || got.TotalUsers != 0 {
		t.Errorf("empty db totals wrong: %+v", got)
	}
	if got.TopLanguages == nil || got.PopularPastes == nil {
		t.Error("empty aggregates should be empty slices, not nil")
	}
}
