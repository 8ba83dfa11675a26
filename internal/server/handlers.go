package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"

	"pushdeploy/internal/deployment"
	"pushdeploy/internal/security"
	"pushdeploy/pkg/cmdutil"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	eventPush = "push"
	eventPing = "ping"
)

// HandleWebhook handles GitHub webhook requests
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")
	deliveryID := github.DeliveryID(r)
	logger := s.Logger.With("project", projectName, "delivery", deliveryID)

	// Validate project name for security
	if err := security.ValidateProjectName(projectName); err != nil {
		logger.Warn("invalid project name in webhook request", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	proj, err := s.Registry.Get(projectName)
	if err != nil {
		logger.Warn("webhook for unknown project", "error", err)
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	// ContentLength is -1 when unknown, the MaxBytesReader below covers that case
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	// The signature covers the raw bytes, so read them before any parsing
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		logger.Error("failed to read request body", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read payload"})
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), proj.Secret) {
		logger.Warn("invalid webhook signature", "remote", clientIP(r))
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	// Requests without an event header are treated as pushes
	eventType := github.WebHookType(r)
	switch eventType {
	case "", eventPush:
	case eventPing:
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	default:
		logger.Info("ignoring non-push event", "event", eventType)
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event", "event": eventType})
		return
	}

	push, err := parsePush(body)
	if err != nil {
		logger.Warn("failed to parse push payload", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}
	push.DeliveryID = deliveryID

	if !proj.MatchesRef(push.Ref) {
		logger.Info("ignoring push to other ref", "ref", push.Ref, "target_branch", proj.TargetBranch)
		s.respondJSON(w, http.StatusOK, map[string]string{
			"message":       "Ignored, branch mismatch",
			"ref":           push.Ref,
			"target_branch": proj.TargetBranch,
		})
		return
	}

	logger.Info("deploying push", "ref", push.Ref, "commit", push.Commit, "pusher", push.Pusher)

	// A dropped connection must not abort a deployment halfway through
	result := s.Deployer.Deploy(context.WithoutCancel(r.Context()), proj, push)

	if result.Success {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "Deployment successful",
			"project":       proj.Name,
			"deployment_id": result.ID,
			"output":        result.Output,
		})
		return
	}

	s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error":                "Deployment failed",
		"project":              proj.Name,
		"deployment_id":        result.ID,
		"failed_command_index": result.FailedIndex,
		"failed_command":       cmdutil.FormatCommand(result.FailedCommand),
		"exit_code":            result.ExitCode,
		"output":               result.Output,
	})
}

// parsePush extracts the fields used for branch matching and notifications.
func parsePush(body []byte) (deployment.Push, error) {
	event, err := github.ParseWebHook(eventPush, body)
	if err != nil {
		return deployment.Push{}, err
	}
	pe, ok := event.(*github.PushEvent)
	if !ok {
		return deployment.Push{}, fmt.Errorf("unexpected event payload %T", event)
	}

	pusher := pe.GetPusher().GetName()
	if pusher == "" {
		pusher = pe.GetSender().GetLogin()
	}

	return deployment.Push{
		Ref:    pe.GetRef(),
		Commit: pe.GetAfter(),
		Pusher: pusher,
	}, nil
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"config_file":   s.ConfigFile,
		"project_count": s.Registry.Count(),
		"projects":      s.Registry.List(),
	})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("failed to encode JSON response", "error", err)
	}
}
