package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const (
	redactedValue = "[REDACTED]"
	cidPrefixLen  = 12
)

type policy uint8

const (
	keep policy = iota
	redact
	// fingerprint replaces values that link a log line to a person or a
	// device with a per-boot salted hash.
	fingerprint
	// shorten keeps a prefix of public content ids so log lines can still be
	// matched against relay traffic.
	shorten
)

var (
	bootNonce = randomNonce()

	keyPolicies = map[string]policy{
		"identity_id": fingerprint,
		"device_id":   fingerprint,
		"did":         fingerprint,
		"signer_did":  fingerprint,
		"signer_key":  fingerprint,
		"vpa":         fingerprint,
		"payee":       fingerprint,
		"upi":         redact,
		"link":        redact,
		"cid":         shorten,
	}
	sensitiveKeyParts = []string{"pin", "seed", "private", "secret", "password", "passphrase"}

	didPattern = regexp.MustCompile(`did:satya:[0-9a-fA-F-]{36}`)
	upiPattern = regexp.MustCompile(`(?i)upi://\S+`)
)

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, ScrubText(rec.Message), rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the key policy, then scrubs DIDs and payment links
// out of free-text values such as errors.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	attr.Value = attr.Value.Resolve()
	switch policyFor(key) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKeyName(key), FingerprintID(valueToString(attr.Value)))
	case shorten:
		return slog.String(key, ShortCID(valueToString(attr.Value)))
	}
	switch attr.Value.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(attr.Value.Group())...)}
	case slog.KindString:
		return slog.String(key, ScrubText(attr.Value.String()))
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(key, ScrubText(err.Error()))
		}
	}
	return attr
}

// SanitizeArgs applies the same rules to alternating key/value arguments.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			out = append(out, args[i])
			continue
		}
		attr := SanitizeAttr(slog.Any(key, args[i+1]))
		i++
		out = append(out, attr.Key, attr.Value.Any())
	}
	return out
}

func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

// ShortCID keeps the leading characters of a content id.
func ShortCID(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= cidPrefixLen {
		return trimmed
	}
	return trimmed[:cidPrefixLen] + "..."
}

// ScrubText fingerprints satya DIDs and redacts upi:// links embedded in s.
func ScrubText(s string) string {
	if !strings.Contains(s, "did:satya:") && !strings.Contains(strings.ToLower(s), "upi://") {
		return s
	}
	s = didPattern.ReplaceAllStringFunc(s, FingerprintID)
	return upiPattern.ReplaceAllString(s, redactedValue)
}

func policyFor(key string) policy {
	lower := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(key), "_fp"))
	if p, ok := keyPolicies[lower]; ok {
		return p
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return redact
		}
	}
	return keep
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func fingerprintKeyName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000000000Z")
	default:
		return fmt.Sprint(v.Any())
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
