package cmdutil

import (
	"bytes"
	"io"

	"github.com/samber/lo"
)

// RedactedMarker replaces every secret found in command output.
const RedactedMarker = "***REDACTED***"

// RedactingWriter replaces secrets in a stream before passing it on.
// It holds back just enough trailing bytes to catch a secret split across
// writes, so Flush must be called once the stream ends.
type RedactingWriter struct {
	w       io.Writer
	secrets [][]byte
	hold    int
	pending []byte
}

// NewRedactingWriter wraps w. Empty secrets are ignored.
func NewRedactingWriter(w io.Writer, secrets []string) *RedactingWriter {
	rw := &RedactingWriter{w: w}
	for _, secret := range lo.Compact(secrets) {
		rw.secrets = append(rw.secrets, []byte(secret))
		rw.hold = max(rw.hold, len(secret)-1)
	}
	return rw
}

func (rw *RedactingWriter) Write(p []byte) (int, error) {
	if len(rw.secrets) == 0 {
		return rw.w.Write(p)
	}

	rw.pending = append(rw.pending, p...)
	for _, secret := range rw.secrets {
		if bytes.Contains(rw.pending, secret) {
			rw.pending = bytes.ReplaceAll(rw.pending, secret, []byte(RedactedMarker))
		}
	}

	ready := len(rw.pending) - rw.hold
	if ready <= 0 {
		return len(p), nil
	}
	if _, err := rw.w.Write(rw.pending[:ready]); err != nil {
		return 0, err
	}
	rw.pending = append(rw.pending[:0], rw.pending[ready:]...)
	return len(p), nil
}

// Flush writes out the bytes held back for split secrets.
func (rw *RedactingWriter) Flush() error {
	if len(rw.pending) == 0 {
		return nil
	}
	_, err := rw.w.Write(rw.pending)
	rw.pending = rw.pending[:0]
	return err
}
