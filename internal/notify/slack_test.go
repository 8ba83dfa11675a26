package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackSender_Send(t *testing.T) {
	t.Chdir(t.TempDir())

	var got slackPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := testMessage()
	msg.Status = StatusFailed
	msg.FailedIndex = 1
	msg.FailedCommand = "npm run build"

	sender := &SlackSender{Token: "xoxb-test", Client: server.Client()}
	if err := sender.Send(context.Background(), server.URL, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if auth != "Bearer xoxb-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Color != slackColorFailed {
		t.Errorf("Color = %q, want %q", att.Color, slackColorFailed)
	}
	if att.Title != "Deployment: webapp" {
		t.Errorf("Title = %q", att.Title)
	}
	if len(att.Fields) != 3 || att.Fields[0].Value != StatusFailed {
		t.Fatalf("Fields = %+v", att.Fields)
	}
	if !strings.Contains(att.Fields[2].Value, "Failed command 2: npm run build") {
		t.Errorf("Details = %q", att.Fields[2].Value)
	}
}

func TestSlackSender_NotConfigured(t *testing.T) {
	sender := &SlackSender{}
	err := sender.Send(context.Background(), "https://hooks.slack.test/x", testMessage())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() error = %v, want ErrNotConfigured", err)
	}
}

func TestSlackSender_ErrorStatus(t *testing.T) {
	t.Chdir(t.TempDir())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	sender := &SlackSender{Token: "bad", Client: server.Client()}
	err := sender.Send(context.Background(), server.URL, testMessage())
	if err == nil {
		t.Fatal("Send() should fail on a non-2xx response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}
