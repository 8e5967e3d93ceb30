package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内のマップに保存する Store です。
// 開発環境とテストで使います。
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string // 作成順の ID
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists && u.ID != "" {
		return ErrDuplicate
	}
	if u.Username != "" && s.findByUsernameLocked(u.Username) != nil {
		return ErrDuplicate
	}
	s.insertLocked(u)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if username == "" {
		return nil, ErrNotFound
	}
	u := s.findByUsernameLocked(username)
	if u == nil {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (s *MemoryStore) FindOrCreateByProvider(ctx context.Context, p Provider, providerID string, seed *User) (*User, bool, error) {
	if err := validateProvider(p, providerID); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if u := s.users[id]; u.ProviderID(p) == providerID {
			return u.clone(), false, nil
		}
	}

	u := seed.clone()
	if u == nil {
		u = &User{}
	}
	u.setProviderID(p, providerID)
	s.insertLocked(u)
	return u.clone(), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u.clone()
	return nil
}

func (s *MemoryStore) ListWithSecrets(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*User{}
	for _, id := range s.order {
		if u := s.users[id]; u.Secret != "" {
			out = append(out, u.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) findByUsernameLocked(username string) *User {
	for _, id := range s.order {
		if u := s.users[id]; u.Username == username {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(u *User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u.clone()
	s.order = append(s.order, u.ID)
}
