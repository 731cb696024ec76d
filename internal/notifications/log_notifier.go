package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier "sends" notifications by logging them. It stands in for a mail
// provider.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, in WelcomeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.welcome",
		"user_id", in.UserID,
		"username", in.Username,
		"email", in.Email,
		"first_names", in.FirstNames,
	)
	return nil
}

func (n *LogNotifier) SendProfileChanged(ctx context.Context, in ProfileChangedInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.profile_changed",
		"user_id", in.UserID,
		"username", in.Username,
		"email", in.Email,
		"fields", in.Fields,
		"by_admin", in.ByAdmin,
	)
	return nil
}
