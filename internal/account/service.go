// Package account holds the registration, login and profile update rules.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/events"
)

// UserStore is the data-access handle for the users relation. Implementations
// must enforce uniqueness of email and username themselves and report
// violations as user.ErrEmailTaken / user.ErrUsernameTaken.
type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) ([]user.User, error)
	Update(ctx context.Context, id string, ch user.Changes) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID, role string) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, t events.Type, payload any) error
}

// ProfileCache is a read-through cache for profiles. Delete must bump the
// key's version so that SetIfVersion refuses fills that raced an update.
type ProfileCache interface {
	Get(key string) (user.Profile, bool)
	Version(key string) uint64
	SetIfVersion(key string, version uint64, p user.Profile) bool
	Delete(key string)
}

type LoginRecorder interface {
	ObserveLogin(result string)
}

const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// Deps wires a Service. Store, Hasher and Tokens are required.
type Deps struct {
	Store   UserStore
	Hasher  PasswordHasher
	Tokens  TokenIssuer
	Events  EventPublisher
	Cache   ProfileCache
	Metrics LoginRecorder
	Log     *slog.Logger
}

type Service struct {
	store   UserStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	events  EventPublisher
	cache   ProfileCache
	metrics LoginRecorder
	log     *slog.Logger

	dummyOnce sync.Once
	dummy     string
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:   d.Store,
		hasher:  d.Hasher,
		tokens:  d.Tokens,
		events:  d.Events,
		cache:   d.Cache,
		metrics: d.Metrics,
		log:     log,
	}
}

type RegisterInput struct {
	FirstNames string `json:"nombres" validate:"required,notblank"`
	LastNames  string `json:"apellidos" validate:"required,notblank"`
	Email      string `json:"correo" validate:"required,notblank,email"`
	Username   string `json:"usuario" validate:"required,notblank"`
	Password   string `json:"password" validate:"required,notblank,max=72"`
	Phone      string `json:"telefono" validate:"required,notblank"`
	Address    string `json:"direccion" validate:"required,notblank"`
	Age        *int   `json:"edad" validate:"required,min=15"`
}

// ProfileFields are the self-service editable fields. Empty values mean
// "not supplied".
type ProfileFields struct {
	FirstNames string `json:"nombres" validate:"omitempty,notblank"`
	LastNames  string `json:"apellidos" validate:"omitempty,notblank"`
	Email      string `json:"correo" validate:"omitempty,notblank,email"`
	Username   string `json:"usuario" validate:"omitempty,notblank"`
	Password   string `json:"password" validate:"omitempty,notblank,max=72"`
	Phone      string `json:"telefono" validate:"omitempty,notblank"`
	Address    string `json:"direccion" validate:"omitempty,notblank"`
	Age        int    `json:"edad" validate:"omitempty,min=15"`
}

type UpdateProfileInput struct {
	ID string `json:"id" validate:"required,notblank"`
	ProfileFields
}

// AdminUpdateInput adds the privileged fields to a profile update.
type AdminUpdateInput struct {
	ID string `json:"id" validate:"required,notblank"`
	ProfileFields
	Role          string `json:"rol" validate:"omitempty,oneof=regular admin"`
	LearningLevel string `json:"nivel_aprendizaje" validate:"omitempty,oneof=beginner intermediate advanced"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (user.Profile, error) {
	if err := validateStruct(in); err != nil {
		return user.Profile{}, err
	}

	// Fast path only. The store's unique constraints are authoritative.
	existing, err := s.store.FindByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		return user.Profile{}, fmt.Errorf("check existing user: %w", err)
	}

	if err := duplicateOf(existing, in.Email, in.Username); err != nil {
		return user.Profile{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return user.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.Create(ctx, user.User{
		FirstNames:    in.FirstNames,
		LastNames:     in.LastNames,
		Email:         in.Email,
		Username:      in.Username,
		PasswordHash:  hash,
		Phone:         in.Phone,
		Address:       in.Address,
		Age:           *in.Age,
		Role:          user.RoleRegular,
		LearningLevel: user.LevelBeginner,
	})

	if err != nil {
		if conflict, ok := conflictFromStore(err); ok {
			return user.Profile{}, conflict
		}
		return user.Profile{}, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", created.ID)

	s.publish(ctx, events.TypeUserRegistered, events.UserRegistered{
		UserID:     created.ID,
		Username:   created.Username,
		Email:      created.Email,
		FirstNames: created.FirstNames,
	})

	return created.Profile(), nil
}

// Authenticate checks a username/password pair and issues an access token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		s.observeLogin(LoginInvalidCredentials)
		return "", ErrInvalidCredentials
	}

	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// keep timing close to the wrong-password path
			_ = s.hasher.Compare(s.dummyHash(), password)
			s.observeLogin(LoginInvalidCredentials)
			return "", ErrInvalidCredentials
		}

		s.observeLogin(LoginError)
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		s.observeLogin(LoginInvalidCredentials)
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateAccessToken(u.ID, string(u.Role))
	if err != nil {
		s.observeLogin(LoginError)
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.observeLogin(LoginSuccess)

	return token, nil
}

// UpdateProfile is the self-service edit. The caller on ctx must own the
// account being edited.
func (s *Service) UpdateProfile(ctx context.Context, in UpdateProfileInput) (user.Profile, error) {
	if err := validateStruct(in); err != nil {
		return user.Profile{}, err
	}

	actor, ok := actorctx.From(ctx)
	if !ok || actor.UserID != in.ID {
		return user.Profile{}, ErrForbidden
	}

	return s.update(ctx, in.ID, in.ProfileFields, nil, nil, false)
}

// AdminUpdate may also change role and learning level. The caller on ctx
// must hold the admin role.
func (s *Service) AdminUpdate(ctx context.Context, in AdminUpdateInput) (user.Profile, error) {
	actor, ok := actorctx.From(ctx)
	if !ok || actor.Role != string(user.RoleAdmin) {
		return user.Profile{}, ErrForbidden
	}

	if err := validateStruct(in); err != nil {
		return user.Profile{}, err
	}

	var role *user.Role
	if in.Role != "" {
		r := user.Role(in.Role)
		role = &r
	}

	var level *user.LearningLevel
	if in.LearningLevel != "" {
		l := user.LearningLevel(in.LearningLevel)
		level = &l
	}

	return s.update(ctx, in.ID, in.ProfileFields, role, level, true)
}

func (s *Service) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	var version uint64

	if s.cache != nil {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
		version = s.cache.Version(id)
	}

	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, fmt.Errorf("load user: %w", err)
	}

	p := u.Profile()

	if s.cache != nil {
		s.cache.SetIfVersion(id, version, p)
	}

	return p, nil
}

func (s *Service) update(ctx context.Context, id string, f ProfileFields, role *user.Role, level *user.LearningLevel, byAdmin bool) (user.Profile, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, fmt.Errorf("load user: %w", err)
	}

	if f.Email != "" && f.Email != current.Email {
		if err := s.ensureFree(ctx, id, s.store.GetByEmail, f.Email, emailConflict); err != nil {
			return user.Profile{}, err
		}
	}

	if f.Username != "" && f.Username != current.Username {
		if err := s.ensureFree(ctx, id, s.store.GetByUsername, f.Username, usernameConflict); err != nil {
			return user.Profile{}, err
		}
	}

	ch := user.Changes{
		FirstNames: changed(f.FirstNames, current.FirstNames),
		LastNames:  changed(f.LastNames, current.LastNames),
		Email:      changed(f.Email, current.Email),
		Username:   changed(f.Username, current.Username),
		Phone:      changed(f.Phone, current.Phone),
		Address:    changed(f.Address, current.Address),
	}

	if f.Age != 0 && f.Age != current.Age {
		age := f.Age
		ch.Age = &age
	}

	if role != nil && *role != current.Role {
		ch.Role = role
	}

	if level != nil && *level != current.LearningLevel {
		ch.LearningLevel = level
	}

	// No plaintext is stored, so a supplied password is always written.
	if f.Password != "" {
		hash, err := s.hasher.Hash(f.Password)
		if err != nil {
			return user.Profile{}, fmt.Errorf("hash password: %w", err)
		}
		ch.PasswordHash = &hash
	}

	if ch.IsEmpty() {
		return user.Profile{}, ErrNoChanges
	}

	updated, err := s.store.Update(ctx, id, ch)
	if err != nil {
		if conflict, ok := conflictFromStore(err); ok {
			return user.Profile{}, conflict
		}
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, fmt.Errorf("update user: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	fields := ch.Fields()

	s.log.InfoContext(ctx, "user updated", "user_id", id, "fields", fields, "by_admin", byAdmin)

	s.publish(ctx, events.TypeUserUpdated, events.UserUpdated{
		UserID:   updated.ID,
		Username: updated.Username,
		Email:    updated.Email,
		Fields:   fields,
		ByAdmin:  byAdmin,
	})

	return updated.Profile(), nil
}

func (s *Service) ensureFree(
	ctx context.Context,
	id string,
	lookup func(context.Context, string) (user.User, error),
	value string,
	conflict func() error,
) error {
	other, err := lookup(ctx, value)

	switch {
	case errors.Is(err, user.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check uniqueness: %w", err)
	case other.ID != id:
		return conflict()
	default:
		return nil
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, payload any) {
	if s.events == nil {
		return
	}

	if err := s.events.Publish(ctx, t, payload); err != nil {
		s.log.WarnContext(ctx, "publish user event failed", "type", t, "err", err)
	}
}

func (s *Service) observeLogin(result string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(result)
	}
}

func (s *Service) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = s.hasher.Hash("userhub-timing-equalizer")
	})
	return s.dummy
}

// duplicateOf reports which field of the candidate clashes with existing
// records. Email is checked first.
func duplicateOf(existing []user.User, email, username string) error {
	for _, u := range existing {
		if u.Email == email {
			return emailConflict()
		}
	}

	for _, u := range existing {
		if u.Username == username {
			return usernameConflict()
		}
	}

	return nil
}

func changed(supplied, current string) *string {
	if supplied == "" || supplied == current {
		return nil
	}
	return &supplied
}
