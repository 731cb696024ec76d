package notifications

import "context"

type WelcomeInput struct {
	UserID     string
	Username   string
	Email      string
	FirstNames string
}

type ProfileChangedInput struct {
	UserID   string
	Username string
	Email    string
	Fields   []string
	ByAdmin  bool
}

type Notifier interface {
	SendWelcome(ctx context.Context, in WelcomeInput) error
	SendProfileChanged(ctx context.Context, in ProfileChangedInput) error
}
