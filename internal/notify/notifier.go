package notify

import (
	"context"
	"log/slog"
)

// Notifier sends one transactional email. Callers treat failures as final.
type Notifier interface {
	SendTransactional(ctx context.Context, templateID, email string, vars map[string]string) error
}

// Noop logs and drops every email; used in development
type Noop struct {
	logger *slog.Logger
}

// NewNoop creates a new no-op notifier
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SendTransactional(_ context.Context, templateID, email string, vars map[string]string) error {
	if n.logger != nil {
		n.logger.Info("Notification dropped (noop provider)",
			slog.String("template_id", templateID),
			slog.String("email", email),
			slog.String("subject", vars["subject"]),
		)
	}
	return nil
}
