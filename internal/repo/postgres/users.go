package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	emailUniqueConstraint    = "users_email_key"
	usernameUniqueConstraint = "users_username_key"
)

const userColumns = `id::text, first_names, last_names, email, username, password_hash,
	phone, address, age, role, learning_level, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		return r.pool.QueryRow(ctx, `
		INSERT INTO users (first_names, last_names, email, username, password_hash,
			phone, address, age, role, learning_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id::text, created_at, updated_at
	`, u.FirstNames, u.LastNames, u.Email, u.Username, u.PasswordHash,
			u.Phone, u.Address, u.Age, string(u.Role), string(u.LearningLevel),
		).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if mapped, ok := classifyUniqueViolation(err); ok {
			return user.User{}, mapped
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// FindByEmailOrUsername returns at most two rows: one per unique column.
func (r *UsersRepo) FindByEmailOrUsername(ctx context.Context, email, username string) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.find_by_email_or_username", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1 OR username = $2 LIMIT 2`,
			email, username,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *UsersRepo) Update(ctx context.Context, id string, ch user.Changes) (user.User, error) {
	sets, args := changeSet(ch)
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns,
	)

	var u user.User
	err := r.observe("users.update", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx, query, args...))
		return e
	})

	if err != nil {
		if isNoUser(err) {
			return user.User{}, user.ErrNotFound
		}
		if mapped, ok := classifyUniqueViolation(err); ok {
			return user.User{}, mapped
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx, query, arg))
		return e
	})

	if err != nil {
		if isNoUser(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// isNoUser also covers ids that are not valid uuids (22P02): no row can match them.
func isNoUser(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u     user.User
		role  string
		level string
	)

	err := row.Scan(
		&u.ID,
		&u.FirstNames,
		&u.LastNames,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Phone,
		&u.Address,
		&u.Age,
		&role,
		&level,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return user.User{}, err
	}

	u.Role = user.Role(role)
	u.LearningLevel = user.LearningLevel(level)

	return u, nil
}

// changeSet turns the set fields of ch into "col = $n" fragments and their args.
func changeSet(ch user.Changes) ([]string, []any) {
	var sets []string
	var args []any

	pos := 1
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, pos))
		args = append(args, v)
		pos++
	}

	if ch.FirstNames != nil {
		add("first_names", *ch.FirstNames)
	}
	if ch.LastNames != nil {
		add("last_names", *ch.LastNames)
	}
	if ch.Email != nil {
		add("email", *ch.Email)
	}
	if ch.Username != nil {
		add("username", *ch.Username)
	}
	if ch.PasswordHash != nil {
		add("password_hash", *ch.PasswordHash)
	}
	if ch.Phone != nil {
		add("phone", *ch.Phone)
	}
	if ch.Address != nil {
		add("address", *ch.Address)
	}
	if ch.Age != nil {
		add("age", *ch.Age)
	}
	if ch.Role != nil {
		add("role", string(*ch.Role))
	}
	if ch.LearningLevel != nil {
		add("learning_level", string(*ch.LearningLevel))
	}

	return sets, args
}

func classifyUniqueViolation(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil, false
	}

	switch pgErr.ConstraintName {
	case emailUniqueConstraint:
		return user.ErrEmailTaken, true
	case usernameUniqueConstraint:
		return user.ErrUsernameTaken, true
	default:
		return nil, false
	}
}
