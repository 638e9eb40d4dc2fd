package svc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pasteor/pkg/domain"
	"pasteor/svc/util"

	"github.com/pkg/errors"
)

func TestCreateValidation(t *testing.T) {
	p, _ := newTestPaste(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params domain.CreateParams
		want   error
	}{
		{"empty content", domain.CreateParams{Content: ""}, domain.ErrContentRequired},
		{"whitespace content", domain.CreateParams{Content: "   \n\t"}, domain.ErrContentRequired},
		{"content too large", domain.CreateParams{Content: strings.Repeat("a", domain.MaxContentBytes+1)}, domain.ErrContentTooLarge},
		{"title too long", domain.CreateParams{Content: "x", Title: strings.Repeat("t", domain.MaxTitleChars+1)}, domain.ErrTitleTooLong},
		{"language too long", domain.CreateParams{Content: "x", Language: strings.Repeat("l", domain.MaxLanguageChars+1)}, domain.ErrLanguageInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Create(ctx, tc.params, nil); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateBoundaries(t *testing.T) {
	p, _ := newTestPaste(t)
	ctx := context.Background()

	// Exactly at the limits is accepted.
	paste, err := p.Create(ctx, domain.CreateParams{
		Content:  strings.Repeat("a", domain.MaxContentBytes),
		Title:    strings.Repeat("t", domain.MaxTitleChars),
		Language: strings.Repeat("l", domain.MaxLanguageChars),
	}, nil)
	if err != nil {
		t.Fatalf("boundary-sized paste rejected: %v", err)
	}
	if !util.ValidID(paste.ID) {
		t.Errorf("allocated id %q has the wrong shape", paste.ID)
	}
}

func TestCreateDefaults(t *testing.T) {
	p, _ := newTestPaste(t)
	ctx := context.Background()

	paste, err := p.Create(ctx, domain.CreateParams{Content: "hello"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if paste.Language != domain.DefaultLanguage {
		t.Errorf("empty language should default to %q, got %q", domain.DefaultLanguage, paste.Language)
	}
	if paste.ExpiresAt != nil {
		t.Errorf("empty tier should mean no expiry, got %v", paste.ExpiresAt)
	}
	if paste.OwnerUserID != nil {
		t.Error("anonymous create must not have an owner")
	}
	if paste.Views != 0 {
		t.Errorf("fresh paste should have zero views, got %d", paste.Views)
	}

	blank, err := p.Create(ctx, domain.CreateParams{Content: "x", Language: "   "}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if blank.Language != domain.DefaultLanguage {
		t.Errorf("blank language should default, got %q", blank.Language)
	}
}

func TestCreateOwned(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ident := registerUser(t, sqlDB, "owner@example.com", "Owner")

	paste := mustCreate(t, p, domain.CreateParams{Content: "mine"}, ident)
	if paste.OwnerUserID == nil || *paste.OwnerUserID != ident.UserID {
		t.Errorf("owner not recorded: %v", paste.OwnerUserID)
	}
}

func TestLazyExpiry(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	paste := mustCreate(t, p, domain.CreateParams{Content: "ephemeral", ExpiresIn: "1h"}, nil)
	if paste.ExpiresAt == nil || !paste.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expiry not resolved against creation time: %v", paste.ExpiresAt)
	}

	if _, err := p.Get(ctx, paste.ID, nil); err != nil {
		t.Fatalf("live paste should be readable: %v", err)
	}

	p.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := p.Get(ctx, paste.ID, nil); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expired paste must read as not found, got %v", err)
	}
	if _, err := p.GetRaw(ctx, paste.ID, nil); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expired raw read must be not found, got %v", err)
	}

	// No sweeper: the row itself stays until the owner deletes it.
	if _, err := sqlDB.GetPaste(ctx, paste.ID); err != nil {
		t.Errorf("expired row should still exist in the store: %v", err)
	}
}

func TestViewCounting(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	ident := registerUser(t, sqlDB, "viewer@example.com", "Viewer")

	paste := mustCreate(t, p, domain.CreateParams{Content: "hello"}, ident)

	// Owner reads are free.
	got, err := p.Get(ctx, paste.ID, ident)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if got.Views != 0 {
		t.Errorf("owner view must not count, got %d", got.Views)
	}

	// Anyone else counts, including anonymous.
	got, err = p.Get(ctx, paste.ID, nil)
	if err != nil {
		t.Fatalf("anonymous get: %v", err)
	}
	if got.Views != 1 {
		t.Errorf("first anonymous view should report 1, got %d", got.Views)
	}
	other := registerUser(t, sqlDB, "other@example.com", "Other")
	got, err = p.Get(ctx, paste.ID, other)
	if err != nil {
		t.Fatalf("other get: %v", err)
	}
	if got.Views != 2 {
		t.Errorf("second counted view should report 2, got %d", got.Views)
	}
}

func TestConcurrentViewsLoseNoUpdates(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()

	paste := mustCreate(t, p, domain.CreateParams{Content: "contended"}, nil)

	const viewers = 50
	var wg sync.WaitGroup
	errCh := make(chan error, viewers)
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Get(ctx, paste.ID, nil); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent get failed: %v", err)
	}

	stored, err := sqlDB.GetPaste(ctx, paste.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Views != viewers {
		t.Errorf("views = %d after %d concurrent reads, want exactly %d", stored.Views, viewers, viewers)
	}
}

func TestUpdateAccessControl(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	stranger := registerUser(t, sqlDB, "stranger@example.com", "Stranger")

	paste := mustCreate(t, p, domain.CreateParams{Content: "original", Title: "first"}, owner)
	newContent := "edited"

	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &newContent}, nil); !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("anonymous update should be 401, got %v", err)
	}
	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &newContent}, stranger); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-owner update should be 403, got %v", err)
	}
	if _, err := p.Update(ctx, "zzzzzzzz", domain.UpdateParams{Content: &newContent}, owner); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("missing paste update should be 404, got %v", err)
	}

	updated, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &newContent}, owner)
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Content != "edited" {
		t.Errorf("content not updated: %q", updated.Content)
	}
	if updated.Title != "first" {
		t.Errorf("nil title field must leave title untouched, got %q", updated.Title)
	}
}

func TestUpdateExpiredReadsAsMissing(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	paste := mustCreate(t, p, domain.CreateParams{Content: "x", ExpiresIn: "1h"}, owner)

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	content := "y"
	// 404 before 403: an expired paste is gone even for its owner's edits.
	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &content}, owner); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("update of expired paste should be not found, got %v", err)
	}
}

func TestUpdateValidation(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	paste := mustCreate(t, p, domain.CreateParams{Content: "x"}, owner)

	empty := "  "
	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &empty}, owner); !errors.Is(err, domain.ErrContentRequired) {
		t.Errorf("blank content update should be rejected, got %v", err)
	}
	huge := strings.Repeat("a", domain.MaxContentBytes+1)
	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Content: &huge}, owner); !errors.Is(err, domain.ErrContentTooLarge) {
		t.Errorf("oversized content update should be rejected, got %v", err)
	}
	badLang := ""
	if _, err := p.Update(ctx, paste.ID, domain.UpdateParams{Language: &badLang}, owner); !errors.Is(err, domain.ErrLanguageInvalid) {
		t.Errorf("explicit empty language update should be rejected, got %v", err)
	}
}

func TestDeleteAccessControl(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	stranger := registerUser(t, sqlDB, "stranger@example.com", "Stranger")

	paste := mustCreate(t, p, domain.CreateParams{Content: "x"}, owner)

	if err := p.Delete(ctx, paste.ID, nil); !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("anonymous delete should be 401, got %v", err)
	}
	if err := p.Delete(ctx, paste.ID, stranger); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-owner delete should be 403, got %v", err)
	}
	if err := p.Delete(ctx, paste.ID, owner); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := p.Delete(ctx, paste.ID, owner); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("second delete should be 404, got %v", err)
	}
}

func TestDeleteExpiredPaste(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	paste := mustCreate(t, p, domain.CreateParams{Content: "x", ExpiresIn: "1h"}, owner)
	p.now = func() time.Time { return base.Add(24 * time.Hour) }

	// Lazy expiry leaves the row behind; the owner is the one who clears it.
	if err := p.Delete(ctx, paste.ID, owner); err != nil {
		t.Errorf("owner should be able to delete an expired paste: %v", err)
	}
}

func TestListRecent(t *testing.T) {
	p, _ := newTestPaste(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		p.now = func() time.Time { return tick }
		mustCreate(t, p, domain.CreateParams{Content: strings.Repeat("x", 150), Title: string(rune('a' + i))}, nil)
	}
	// One expired paste that must not appear.
	p.now = func() time.Time { return base }
	mustCreate(t, p, domain.CreateParams{Content: "gone", ExpiresIn: "1h"}, nil)

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	summaries, err := p.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("limit not applied: got %d items", len(summaries))
	}
	if summaries[0].Title != "e" || summaries[1].Title != "d" || summaries[2].Title != "c" {
		t.Errorf("recent listing not newest-first: %v, %v, %v", summaries[0].Title, summaries[1].Title, summaries[2].Title)
	}
	for _, s := range summaries {
		if len([]rune(s.Preview)) != domain.PreviewChars+3 {
			t.Errorf("preview not truncated: %d runes", len([]rune(s.Preview)))
		}
	}

	// Out-of-range limits clamp rather than fail.
	if _, err := p.ListRecent(ctx, 0); err != nil {
		t.Errorf("zero limit should clamp: %v", err)
	}
	if _, err := p.ListRecent(ctx, 10000); err != nil {
		t.Errorf("huge limit should clamp: %v", err)
	}
}

func TestListOwnedPagination(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		p.now = func() time.Time { return tick }
		mustCreate(t, p, domain.CreateParams{Content: "c", Title: string(rune('a' + i))}, owner)
	}

	if _, err := p.ListOwned(ctx, nil, domain.OwnedQuery{Page: 1, PageSize: 5}); !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("anonymous listing should be 401, got %v", err)
	}

	page, err := p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 2, PageSize: 5})
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if page.Total != 12 || page.TotalPages != 3 || page.Page != 2 || page.PageSize != 5 {
		t.Errorf("pagination metadata wrong: %+v", page)
	}
	if len(page.Items) != 5 {
		t.Fatalf("page 2 should have 5 items, got %d", len(page.Items))
	}
	// Date descending: page 2 of 12 holds the 6th through 10th newest.
	if page.Items[0].Title != "g" || page.Items[4].Title != "c" {
		t.Errorf("page 2 contents wrong: first %q last %q", page.Items[0].Title, page.Items[4].Title)
	}
}

func TestListOwnedSearchIsCaseSensitive(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")

	mustCreate(t, p, domain.CreateParams{Content: "Hello World"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "say hello twice", Title: "greETing"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "unrelated"}, owner)

	page, err := p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Search: "hello"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("search %q matched %d pastes, want 1 (case sensitive)", "hello", page.Total)
	}

	page, err = p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Search: "ETing"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("title substring search matched %d, want 1", page.Total)
	}
}

func TestListOwnedLanguageFilterAndSort(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")

	goPaste := mustCreate(t, p, domain.CreateParams{Content: "a", Language: "go", Title: "zeta"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "b", Language: "python", Title: "alpha"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "c", Language: "go", Title: "beta"}, owner)

	for i := 0; i < 3; i++ {
		if _, err := p.Get(ctx, goPaste.ID, nil); err != nil {
			t.Fatalf("warm views: %v", err)
		}
	}

	page, err := p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Language: "go"})
	if err != nil {
		t.Fatalf("language filter: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("language filter matched %d, want 2", page.Total)
	}

	page, err = p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Language: "all"})
	if err != nil {
		t.Fatalf("language all: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("language=all should not filter, got %d", page.Total)
	}

	page, err = p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Sort: domain.SortViews})
	if err != nil {
		t.Fatalf("sort views: %v", err)
	}
	if page.Items[0].ID != goPaste.ID {
		t.Errorf("views sort should put the viewed paste first, got %q", page.Items[0].ID)
	}

	page, err = p.ListOwned(ctx, owner, domain.OwnedQuery{Page: 1, PageSize: 10, Sort: domain.SortTitle})
	if err != nil {
		t.Fatalf("sort title: %v", err)
	}
	if page.Items[0].Title != "alpha" {
		t.Errorf("title sort should be ascending, got %q first", page.Items[0].Title)
	}
}

func TestUserStats(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	if _, err := p.UserStats(ctx, nil); !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("anonymous stats should be 401, got %v", err)
	}

	empty, err := p.UserStats(ctx, owner)
	if err != nil {
		t.Fatalf("empty stats: %v", err)
	}
	if empty.TotalPastes != 0 || empty.MostViewedPasteID != nil {
		t.Errorf("stats for user with no pastes should be zeroed: %+v", empty)
	}

	hot := mustCreate(t, p, domain.CreateParams{Content: "hot"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "cold"}, owner)
	expired := mustCreate(t, p, domain.CreateParams{Content: "stale", ExpiresIn: "1h"}, owner)
	_ = expired

	for i := 0; i < 2; i++ {
		if _, err := p.Get(ctx, hot.ID, nil); err != nil {
			t.Fatalf("warm views: %v", err)
		}
	}

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	stats, err := p.UserStats(ctx, owner)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPastes != 3 {
		t.Errorf("total should include expired pastes, got %d", stats.TotalPastes)
	}
	if stats.ActivePastes != 2 {
		t.Errorf("active should exclude expired pastes, got %d", stats.ActivePastes)
	}
	if stats.TotalViews != 2 {
		t.Errorf("total views wrong: %d", stats.TotalViews)
	}
	if stats.MostViewedPasteID == nil || *stats.MostViewedPasteID != hot.ID {
		t.Errorf("most viewed should be %q, got %v", hot.ID, stats.MostViewedPasteID)
	}
}

func TestUserStatsMostViewedTie(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.now = func() time.Time { return base }
	older := mustCreate(t, p, domain.CreateParams{Content: "first"}, owner)
	p.now = func() time.Time { return base.Add(time.Minute) }
	newer := mustCreate(t, p, domain.CreateParams{Content: "second"}, owner)

	for _, id := range []string{newer.ID, older.ID} {
		for i := 0; i < 2; i++ {
			if _, err := p.Get(ctx, id, nil); err != nil {
				t.Fatalf("view %s: %v", id, err)
			}
		}
	}

	stats, err := p.UserStats(ctx, owner)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MostViewedPasteID == nil {
		t.Fatal("most viewed missing")
	}
	if *stats.MostViewedPasteID != older.ID {
		t.Errorf("equal view counts should break toward the older paste %q, got %q", older.ID, *stats.MostViewedPasteID)
	}
}

func TestUserLanguages(t *testing.T) {
	p, sqlDB := newTestPaste(t)
	ctx := context.Background()
	owner := registerUser(t, sqlDB, "owner@example.com", "Owner")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	langs, err := p.UserLanguages(ctx, owner)
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if langs == nil || len(langs) != 0 {
		t.Errorf("no pastes should yield an empty (non-nil) slice, got %v", langs)
	}

	mustCreate(t, p, domain.CreateParams{Content: "a", Language: "python"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "b", Language: "go"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "c", Language: "go"}, owner)
	mustCreate(t, p, domain.CreateParams{Content: "d", Language: "ada", ExpiresIn: "1h"}, owner)

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	langs, err = p.UserLanguages(ctx, owner)
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	// Distinct and sorted; spans expired pastes too.
	want := []string{"ada", "go", "python"}
	if len(langs) != len(want) {
		t.Fatalf("got %v, want %v", langs, want)
	}
	for i := range want {
		if langs[i] != want[i] {
			t.Fatalf("got %v, want %v", langs, want)
		}
	}
}
