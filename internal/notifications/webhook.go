package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/stationprice/internal/httputil"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/rs/zerolog"
)

// Sender posts price-change messages to a Slack or Discord webhook.
type Sender struct {
	webhookURL string
	name       string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        zerolog.Logger
}

func NewSender(webhookURL, name string, log zerolog.Logger) *Sender {
	if name == "" {
		name = "StationPrice"
	}
	s := &Sender{
		webhookURL: webhookURL,
		name:       name,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	s.retry = httputil.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    5 * time.Second,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("webhook attempt failed")
		},
	}
	return s
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// PriceChanged announces a stored price change. prev is nil for a first price.
func (s *Sender) PriceChanged(ctx context.Context, prev *models.Annotation, next models.Annotation) {
	var msg string
	if prev == nil {
		msg = fmt.Sprintf("New price at %s: $%s", next.ID, next.Price.StringFixed(2))
	} else {
		msg = fmt.Sprintf("Price at %s changed: $%s -> $%s", next.ID, prev.Price.StringFixed(2), next.Price.StringFixed(2))
	}
	s.Send(ctx, msg)
}

func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.name, msg)
	s.log.Info().Str("message", formatted).Msg("notification")

	if !s.Enabled() {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		s.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("webhook delivery failed after retries")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.Warn().Int("status", resp.StatusCode).Msg("webhook rejected")
	}
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.name,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.name,
	}
}
