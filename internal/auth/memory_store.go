package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryStore 是进程内用户目录，数据来自配置中的种子用户。
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	byID   map[int64]*Subject
	nextID int64
}

// NewMemoryStore 创建空目录并写入 seeds。
func NewMemoryStore(seeds ...Seed) (*MemoryStore, error) {
	store := &MemoryStore{
		users:  make(map[string]*User),
		byID:   make(map[int64]*Subject),
		nextID: 1,
	}
	for _, seed := range seeds {
		if err := store.ApplySeed(context.Background(), seed); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ApplySeed 按用户名插入或覆盖用户。
func (s *MemoryStore) ApplySeed(_ context.Context, seed Seed) error {
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return errors.New("seed username cannot be empty")
	}
	hashed, err := HashPassword(seed.Password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		user = &User{ID: s.nextID}
		s.nextID++
	}
	user.Username = username
	user.PasswordHash = hashed
	user.Disabled = seed.Disabled
	s.users[username] = user
	s.byID[user.ID] = &Subject{
		ID:          user.ID,
		Username:    username,
		Account:     strings.TrimSpace(seed.Account),
		Permissions: dedupePermissions(seed.Permissions),
		Disabled:    seed.Disabled,
	}
	return nil
}

// Disable 禁用用户，已签发的令牌随之失效。
func (s *MemoryStore) Disable(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return false
	}
	user.Disabled = true
	if subject, ok := s.byID[user.ID]; ok {
		subject.Disabled = true
	}
	return true
}

func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.TrimSpace(username)]
	if !ok {
		return nil, errors.New("user not found")
	}
	clone := *user
	return &clone, nil
}

func (s *MemoryStore) LoadSubject(_ context.Context, userID int64) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.byID[userID]
	if !ok {
		return nil, errors.New("subject not found")
	}
	return subject.clone(), nil
}

func dedupePermissions(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = normalisePermission(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
