package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in a map. Uniqueness of email and username is
// checked and applied under one lock, the same guarantee the Postgres unique
// constraints give.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique("", u.Email, u.Username); err != nil {
		return user.User{}, err
	}

	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	r.items[u.ID] = u

	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	return r.findOne(func(u user.User) bool { return u.Email == email })
}

func (r *UsersRepo) GetByUsername(_ context.Context, username string) (user.User, error) {
	return r.findOne(func(u user.User) bool { return u.Username == username })
}

func (r *UsersRepo) FindByEmailOrUsername(_ context.Context, email, username string) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, 0, 2)
	for _, u := range r.items {
		if u.Email == email || u.Username == username {
			out = append(out, u)
		}
	}

	return out, nil
}

func (r *UsersRepo) Update(_ context.Context, id string, ch user.Changes) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	email, username := "", ""
	if ch.Email != nil {
		email = *ch.Email
	}
	if ch.Username != nil {
		username = *ch.Username
	}

	if err := r.checkUnique(id, email, username); err != nil {
		return user.User{}, err
	}

	ch.Apply(&u)
	u.UpdatedAt = time.Now().UTC()

	r.items[id] = u

	return u, nil
}

// Len reports how many users are stored.
func (r *UsersRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *UsersRepo) findOne(match func(user.User) bool) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if match(u) {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

// checkUnique must be called with the write lock held. Empty values are
// skipped. Email is checked across all rows before username.
func (r *UsersRepo) checkUnique(selfID, email, username string) error {
	if email != "" && r.holds(selfID, func(u user.User) bool { return u.Email == email }) {
		return user.ErrEmailTaken
	}

	if username != "" && r.holds(selfID, func(u user.User) bool { return u.Username == username }) {
		return user.ErrUsernameTaken
	}

	return nil
}

func (r *UsersRepo) holds(selfID string, match func(user.User) bool) bool {
	for id, u := range r.items {
		if id != selfID && match(u) {
			return true
		}
	}

	return false
}
