package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/sesclient"
)

// New builds the configured notifier. SES credentials are shared with the
// SES gateway settings.
func New(ctx context.Context, cfg config.NotifierConfig, ses config.SESConfig, l *slog.Logger) (Notifier, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogNotifier(l), nil
	case "ses":
		if cfg.From == "" {
			return nil, errors.New("ses notifier needs NOTIFIER_FROM")
		}
		client, err := sesclient.New(ctx, ses.Region, ses.AccessKey, ses.SecretKey)
		if err != nil {
			return nil, err
		}
		return NewSESNotifier(client, cfg.From), nil
	}
	return nil, fmt.Errorf("unknown notifier provider %q", cfg.Provider)
}
