package user

import (
	"errors"
	"time"
)

// MinAge is the youngest age accepted for an account.
const MinAge = 15

type Role string

const (
	RoleRegular Role = "regular"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleRegular, RoleAdmin:
		return true
	default:
		return false
	}
}

type LearningLevel string

const (
	LevelBeginner     LearningLevel = "beginner"
	LevelIntermediate LearningLevel = "intermediate"
	LevelAdvanced     LearningLevel = "advanced"
)

func (l LearningLevel) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
)

type User struct {
	ID            string
	FirstNames    string
	LastNames     string
	Email         string
	Username      string
	PasswordHash  string
	Phone         string
	Address       string
	Age           int
	Role          Role
	LearningLevel LearningLevel
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the outward view of a user. It has no password field at all.
type Profile struct {
	ID            string        `json:"id"`
	FirstNames    string        `json:"nombres"`
	LastNames     string        `json:"apellidos"`
	Email         string        `json:"correo"`
	Username      string        `json:"usuario"`
	Phone         string        `json:"telefono"`
	Address       string        `json:"direccion"`
	Age           int           `json:"edad"`
	Role          Role          `json:"rol"`
	LearningLevel LearningLevel `json:"nivel_aprendizaje"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		FirstNames:    u.FirstNames,
		LastNames:     u.LastNames,
		Email:         u.Email,
		Username:      u.Username,
		Phone:         u.Phone,
		Address:       u.Address,
		Age:           u.Age,
		Role:          u.Role,
		LearningLevel: u.LearningLevel,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
