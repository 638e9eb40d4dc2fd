package svc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pasteor/cfg"
	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/util"

	"github.com/joho/godotenv"
)

var (
	envLoadOnce sync.Once
	dbSeq       int64
)

func loadTestEnv() {
	envLoadOnce.Do(func() {
		util.InitLog("error", false)
		paths := []string{
			".env.test",
			"../.env.test",
			"../../.env.test",
		}
		for _, p := range paths {
			if absPath, err := filepath.Abs(p); err == nil {
				if _, err := os.Stat(absPath); err == nil {
					if godotenv.Load(absPath) == nil {
						return
					}
				}
			}
		}
	})
}

func newTestDB(t *testing.T) *db.SQLite {
	t.Helper()
	loadTestEnv()
	n := atomic.AddInt64(&dbSeq, 1)
	dsn := fmt.Sprintf("file:svctest%d?mode=memory&cache=shared", n)
	sqlDB, err := db.NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func newTestCfg() *cfg.Cfg {
	return &cfg.Cfg{
		Port:          "0",
		Environment:   "test",
		LogLevel:      "error",
		BaseURL:       "http://localhost:8080",
		UserCacheSize: 100,
		UserCacheTTL:  time.Minute,
		StatsCacheTTL: time.Second,
	}
}

func newTestUsers(t *testing.T) *cache.Users {
	t.Helper()
	users, err := cache.NewUsers(100, time.Minute)
	if err != nil {
		t.Fatalf("user cache: %v", err)
	}
	return users
}

func newTestPaste(t *testing.T) (*Paste, *db.SQLite) {
	t.Helper()
	sqlDB := newTestDB(t)
	return NewPaste(sqlDB, nil, newTestUsers(t), newTestCfg()), sqlDB
}

func newTestComment(t *testing.T, sqlDB *db.SQLite) *Comment {
	t.Helper()
	return NewComment(sqlDB, newTestUsers(t))
}

// registerUser creates a user row and returns the identity a verified
// bearer token for it would carry.
func registerUser(t *testing.T, sqlDB *db.SQLite, email, name string) *domain.Identity {
	t.Helper()
	user, err := sqlDB.ResolveUser(context.Background(), email, name, "", "github", "gh-"+email)
	if err != nil {
		t.Fatalf("resolve user %s: %v", email, err)
	}
	return &domain.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}
}

func mustCreate(t *testing.T, p *Paste, params domain.CreateParams, ident *domain.Identity) *domain.Paste {
	t.Helper()
	paste, err := p.Create(context.Background(), params, ident)
	if err != nil {
		t.Fatalf("create paste: %v", err)
	}
	return paste
}
