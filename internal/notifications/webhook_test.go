package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func annotation(id int64, price string) models.Annotation {
	return models.Annotation{
		ID:        models.FeedIdentity(id),
		Price:     decimal.RequireFromString(price),
		UpdatedAt: time.Now(),
	}
}

func capture(t *testing.T) (*httptest.Server, *map[string]string) {
	t.Helper()
	received := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestSend_NoWebhook(t *testing.T) {
	s := NewSender("", "TestBot", zerolog.Nop())
	if s.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	s.Send(context.Background(), "hello from test")
}

func TestPriceChanged_SlackFormat(t *testing.T) {
	srv, received := capture(t)

	s := NewSender(srv.URL, "TestBot", zerolog.Nop())
	prev := annotation(101, "3.5")
	s.PriceChanged(context.Background(), &prev, annotation(101, "3.79"))

	got := *received
	if got["username"] != "TestBot" {
		t.Fatalf("username: got %s", got["username"])
	}
	if !strings.Contains(got["text"], "node/101") || !strings.Contains(got["text"], "$3.50 -> $3.79") {
		t.Fatalf("unexpected text: %q", got["text"])
	}
}

func TestPriceChanged_DiscordFormat(t *testing.T) {
	srv, received := capture(t)

	s := NewSender(srv.URL+"/discord/webhook", "PriceBot", zerolog.Nop())
	s.PriceChanged(context.Background(), nil, annotation(7, "4"))

	got := *received
	if !strings.Contains(got["content"], "New price at node/7: $4.00") {
		t.Fatalf("unexpected content: %q", got["content"])
	}
	if _, hasText := got["text"]; hasText {
		t.Fatal("Discord payload should not have 'text' field")
	}
}

func TestSend_WebhookError(t *testing.T) {
	s := NewSender("http://localhost:1/bogus", "TestBot", zerolog.Nop())
	s.retry.BaseDelay = time.Millisecond
	s.retry.MaxDelay = time.Millisecond
	s.Send(context.Background(), "this will fail gracefully")
}

func TestDefaultName(t *testing.T) {
	s := NewSender("", "", zerolog.Nop())
	if s.name != "StationPrice" {
		t.Fatalf("expected default name, got %s", s.name)
	}
}
