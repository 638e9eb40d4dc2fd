package cache

import (
	"errors"
	"sync"
	"time"

	"pasteor/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Users is an in-process LRU of user display info, keyed by user id. It
// backs author-name resolution on comment and popular-paste reads so
// those paths do not hit the users table per entry. Entries carry a TTL
// since provider logins may refresh name and avatar.
type Users struct {
	c   *lru.Cache[int64, item]
	ttl time.Duration
	mu  sync.Mutex
}

type item struct {
	user *domain.User
	exp  time.Time
}

func NewUsers(size int, ttl time.Duration) (*Users, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[int64, item](size)
	if err != nil {
		return nil, err
	}
	return &Users{c: c, ttl: ttl}, nil
}

// Get returns the cached user, or nil on miss. A cached nil user is a
// valid entry: it remembers that the id no longer resolves.
func (u *Users) Get(id int64) (*domain.User, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	it, ok := u.c.Get(id)
	if !ok {
		return nil, false
	}
	if time.Now().After(it.exp) {
		u.c.Remove(id)
		return nil, false
	}
	return it.user, true
}

func (u *Users) Set(id int64, user *domain.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.c.Add(id, item{
		user: user,
		exp:  time.Now().Add(u.ttl),
	})
}

func (u *Users) Delete(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.c.Remove(id)
}
