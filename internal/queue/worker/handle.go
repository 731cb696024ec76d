package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/userhub/internal/events"
	"github.com/geocoder89/userhub/internal/notifications"
)

// HandleEvent dispatches one user event to the notifier. A returned error
// leaves the message pending for a retry.
func (w *Worker) HandleEvent(ctx context.Context, env events.Envelope) error {
	start := time.Now()
	w.metrics.IncReceived()

	err := w.dispatch(ctx, env)

	w.metrics.ObserveDuration(time.Since(start))

	result := "sent"
	if err != nil {
		result = "failed"
		w.metrics.IncFailed()
	} else {
		w.metrics.IncHandled()
	}

	if w.prom != nil {
		w.prom.ObserveNotification(string(env.Type), result)
	}

	return err
}

func (w *Worker) dispatch(ctx context.Context, env events.Envelope) error {
	payload, err := events.Decode(env)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case events.UserRegistered:
		return w.notifier.SendWelcome(ctx, notifications.WelcomeInput{
			UserID:     p.UserID,
			Username:   p.Username,
			Email:      p.Email,
			FirstNames: p.FirstNames,
		})
	case events.UserUpdated:
		return w.notifier.SendProfileChanged(ctx, notifications.ProfileChangedInput{
			UserID:   p.UserID,
			Username: p.Username,
			Email:    p.Email,
			Fields:   p.Fields,
			ByAdmin:  p.ByAdmin,
		})
	default:
		return fmt.Errorf("%w: %s", events.ErrInvalidType, env.Type)
	}
}
