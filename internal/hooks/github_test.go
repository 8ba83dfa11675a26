package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"
)

// fakeGitHub serves the repository hooks API for octocat/hello-world.
type fakeGitHub struct {
	mu      sync.Mutex
	hooks   []map[string]interface{}
	created []map[string]interface{}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/hooks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			page := r.URL.Query().Get("page")
			var hooks []map[string]interface{}
			if page == "" || page == "1" {
				if len(f.hooks) > 1 {
					// Serve the first hook on page one and the rest on page two
					w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
					hooks = f.hooks[:1]
				} else {
					hooks = f.hooks
				}
			} else {
				hooks = f.hooks[1:]
			}
			_ = json.NewEncoder(w).Encode(hooks)
		case http.MethodPost:
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("invalid create body: %v", err)
			}
			f.created = append(f.created, body)
			body["id"] = 42
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func newTestRegistrar(t *testing.T, fake *fakeGitHub) *Registrar {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	client := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	client.BaseURL = baseURL
	return NewRegistrarWithClient(client)
}

func TestWebhookURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://deploy.example.com", "https://deploy.example.com/webhook/webapp"},
		{"https://deploy.example.com/", "https://deploy.example.com/webhook/webapp"},
		{"https://example.com/hooks", "https://example.com/hooks/webhook/webapp"},
	}

	for _, tt := range tests {
		if got := WebhookURL(tt.base, "webapp"); got != tt.want {
			t.Errorf("WebhookURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestEnsure_CreatesHook(t *testing.T) {
	fake := &fakeGitHub{}
	r := newTestRegistrar(t, fake)

	result, err := r.Ensure(context.Background(), "octocat/hello-world", "https://deploy.example.com/webhook/webapp", "s3cret")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !result.Created || result.ID != 42 {
		t.Errorf("Ensure() = %+v, want created hook 42", result)
	}

	if len(fake.created) != 1 {
		t.Fatalf("created %d hooks, want 1", len(fake.created))
	}
	config := fake.created[0]["config"].(map[string]interface{})
	if config["url"] != "https://deploy.example.com/webhook/webapp" || config["secret"] != "s3cret" || config["content_type"] != "json" {
		t.Errorf("unexpected hook config: %v", config)
	}
	events := fake.created[0]["events"].([]interface{})
	if len(events) != 1 || events[0] != "push" {
		t.Errorf("events = %v, want [push]", events)
	}
}

func TestEnsure_ExistingHookIsKept(t *testing.T) {
	fake := &fakeGitHub{hooks: []map[string]interface{}{
		{"id": 7, "config": map[string]interface{}{"url": "https://other.example.com/hook"}},
		{"id": 9, "config": map[string]interface{}{"url": "https://deploy.example.com/webhook/webapp"}},
	}}
	r := newTestRegistrar(t, fake)

	result, err := r.Ensure(context.Background(), "octocat/hello-world", "https://deploy.example.com/webhook/webapp", "s3cret")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if result.Created || result.ID != 9 {
		t.Errorf("Ensure() = %+v, want existing hook 9", result)
	}
	if len(fake.created) != 0 {
		t.Error("no hook should be created when one already exists")
	}
}

func TestEnsure_Errors(t *testing.T) {
	fake := &fakeGitHub{}
	r := newTestRegistrar(t, fake)

	if _, err := r.Ensure(context.Background(), "not-a-repo", "https://x", "s"); err == nil {
		t.Error("Ensure() should reject an invalid owner/repo")
	}

	_, err := r.Ensure(context.Background(), "octocat/missing", "https://x", "s")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Ensure() error = %v, want repository not found", err)
	}
}

func TestNewRegistrar_RequiresToken(t *testing.T) {
	if _, err := NewRegistrar(context.Background(), ""); err == nil {
		t.Error("NewRegistrar() should require a token")
	}
	if _, err := NewRegistrar(context.Background(), "ghp_test"); err != nil {
		t.Errorf("NewRegistrar() error = %v", err)
	}
}
