package gateway

import (
	"context"
	"fmt"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/sesclient"
)

const (
	ProviderGmail     = "gmail"
	ProviderSMTP      = "smtp"
	ProviderSES       = "ses"
	ProviderSimulated = "simulated"
)

// New builds the configured gateway wrapped with the send timeout.
// SimulateLimit replaces any provider with one that always hits the limit.
func New(ctx context.Context, cfg config.GatewayConfig) (Gateway, error) {
	composer := NewComposer(nil)

	var g Gateway
	switch {
	case cfg.SimulateLimit:
		g = NewSimulatedGateway(true, composer)
	case cfg.Provider == ProviderGmail:
		if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
			return nil, fmt.Errorf("gmail gateway needs GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
		}
		g = NewGmailGateway(GmailConfig{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			BaseURL:      cfg.Gmail.BaseURL,
		}, composer)
	case cfg.Provider == ProviderSMTP:
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("smtp gateway needs a host")
		}
		g = NewSMTPGateway(cfg.SMTP.Host, cfg.SMTP.Port, composer)
	case cfg.Provider == ProviderSES:
		client, err := sesclient.New(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
		if err != nil {
			return nil, err
		}
		g = NewSESGateway(client, composer)
	case cfg.Provider == ProviderSimulated:
		g = NewSimulatedGateway(false, composer)
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
	return WithTimeout(g, cfg.SendTimeout()), nil
}
