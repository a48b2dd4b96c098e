// Package webhook authenticates and normalizes inbound payment callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/apperr"
)

// Verifier checks the provider signature over the raw request bytes before
// anything is parsed. Signature scheme: hex(HMAC-SHA256(secret, timestamp "." body))
// when a timestamp header is sent, hex(HMAC-SHA256(secret, body)) otherwise.
type Verifier struct {
	Secret       string
	ReplayWindow time.Duration // 0 disables the timestamp check
	Log          *zap.Logger

	now func() time.Time // test hook
}

func NewVerifier(secret string, replayWindow time.Duration, log *zap.Logger) *Verifier {
	return &Verifier{Secret: secret, ReplayWindow: replayWindow, Log: log, now: time.Now}
}

func (v *Verifier) Verify(rawBody []byte, signature, timestamp string) error {
	if v.Secret == "" {
		// Degraded mode: only reachable under the explicit dev configuration,
		// config.Load refuses an empty secret otherwise. Still worth shouting
		// about on every delivery.
		v.Log.Warn("accepting unsigned webhook: no secret configured",
			zap.Bool("insecure", true))
		return nil
	}
	if signature == "" {
		return apperr.New(apperr.Authentication, "missing webhook signature")
	}
	if v.ReplayWindow > 0 {
		if timestamp == "" {
			return apperr.New(apperr.Authentication, "missing webhook timestamp")
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return apperr.New(apperr.Authentication, "malformed webhook timestamp")
		}
		if d := v.now().Sub(time.Unix(ts, 0)); d > v.ReplayWindow || d < -v.ReplayWindow {
			return apperr.New(apperr.Authentication, "webhook timestamp outside replay window")
		}
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
	}
	mac.Write(rawBody)

	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, mac.Sum(nil)) {
		return apperr.New(apperr.Authentication, "webhook signature mismatch")
	}
	return nil
}

// Sign is the counterpart of Verify, used by tests and local tooling.
func Sign(secret string, rawBody []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
	}
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
