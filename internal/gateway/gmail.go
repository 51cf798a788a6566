package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

const (
	DefaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"
	gmailSendScope      = "https://www.googleapis.com/auth/gmail.send"
)

// limitReasons are Google API error reasons that mean the sending quota is spent.
var limitReasons = map[string]bool{
	"dailyLimitExceeded":    true,
	"userRateLimitExceeded": true,
	"rateLimitExceeded":     true,
	"quotaExceeded":         true,
}

// GmailGateway sends through the Gmail API as the campaign owner, using the
// owner's stored refresh token. Access tokens are cached per user and
// refreshed by oauth2 when they expire.
type GmailGateway struct {
	oauth    *oauth2.Config
	baseURL  string
	composer *Composer

	mu     sync.Mutex
	tokens map[string]oauth2.TokenSource
}

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL and TokenURL are overridable for tests.
	BaseURL  string
	TokenURL string
}

func NewGmailGateway(cfg GmailConfig, composer *Composer) *GmailGateway {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGmailBaseURL
	}
	if composer == nil {
		composer = NewComposer(nil)
	}
	return &GmailGateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gmailSendScope},
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		composer: composer,
		tokens:   make(map[string]oauth2.TokenSource),
	}
}

type gmailErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

func (g *GmailGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	if user.RefreshToken == "" {
		return Failed(0, "user has no Gmail refresh token")
	}

	raw, err := g.composer.Raw(user, lead, msg)
	if err != nil {
		return Failed(0, err.Error())
	}
	payload, err := json.Marshal(map[string]string{"raw": base64.RawURLEncoding.EncodeToString(raw)})
	if err != nil {
		return Failed(0, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return Failed(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := oauth2.NewClient(ctx, g.tokenSource(user)).Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			code := 0
			if retrieveErr.Response != nil {
				code = retrieveErr.Response.StatusCode
			}
			return Failed(code, "token refresh failed: "+retrieveErr.Error())
		}
		return Failed(0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return Sent()
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return classifyGmailError(resp.StatusCode, body)
}

func classifyGmailError(status int, body []byte) Outcome {
	var parsed gmailErrorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
		for _, e := range parsed.Error.Errors {
			if limitReasons[e.Reason] {
				return Limited(status, message)
			}
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return Classify(status, message)
}

func (g *GmailGateway) tokenSource(user *model.User) oauth2.TokenSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	// keyed by token too, so a re-authorised user gets a fresh source
	key := strconv.Itoa(user.ID) + ":" + user.RefreshToken
	if ts, ok := g.tokens[key]; ok {
		return ts
	}
	ts := g.oauth.TokenSource(context.Background(), &oauth2.Token{RefreshToken: user.RefreshToken})
	g.tokens[key] = ts
	return ts
}
