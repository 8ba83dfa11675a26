// Package server implements the HTTP surface of the pushdeploy webhook receiver.
//
// Endpoints:
//   - POST /webhook/{projectName}: GitHub push webhook, deploys synchronously
//   - GET /health: liveness and loaded configuration summary
//
// A webhook request is handled in a fixed order: the project is resolved,
// the body is read and its HMAC-SHA256 signature checked against the
// project's secret, and only then is the payload parsed and acted on.
// Pushes to other refs are acknowledged and ignored. The response status
// reflects the deployment outcome: 200 on success, 500 on failure.
//
// Security features:
//   - HMAC-SHA256 webhook signature verification
//   - Content-Type validation (application/json only)
//   - Payload size limits (1MB max)
//   - Per-IP rate limiting (global and per-webhook)
package server
