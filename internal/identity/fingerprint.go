package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// IsStableSessionKey reports whether key is one of the forms exempt from
// fingerprint-pin treatment: "mcp:", "stdio:", "agent-".
func IsStableSessionKey(key string) bool {
	return strings.HasPrefix(key, "mcp:") || strings.HasPrefix(key, "stdio:") || strings.HasPrefix(key, "agent-")
}

// NormalizeFingerprint reduces a rotating-proxy session key of shape
// "IP:UA_hash[:suffix]" down to "ua:<hash>", stripping the IP and any
// trailing random suffix so the same user agent maps to the same pin
// regardless of which address a proxy assigned it this time.
func NormalizeFingerprint(key string) (normalized string, uaHash string, ok bool) {
	if IsStableSessionKey(key) {
		return "", "", false
	}
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return "", "", false
	}
	uaHash = parts[1]
	if uaHash == "" {
		return "", "", false
	}
	return "ua:" + uaHash, uaHash, true
}

// HashUserAgent hashes a raw User-Agent header to the first 16 hex chars of
// its SHA-256. The resolver does not call it: both the onboard pin write and
// the pin lookup key on the session key's second colon-separated component
// exactly as it arrives.
func HashUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// DeriveAgentID constructs the human-readable agent_id: capitalized model
// type, or client hint, or a generic "mcp" fallback, each suffixed with the
// UTC date so identities naturally roll over day to day.
func DeriveAgentID(modelType, clientHint string, now time.Time) string {
	suffix := now.UTC().Format("20060102")
	switch {
	case modelType != "":
		return capitalizeTokens(modelType) + "_" + suffix
	case clientHint != "":
		return clientHint + "_" + suffix
	default:
		return "mcp_" + suffix
	}
}

// capitalizeTokens splits on '-', '_', '.', capitalizes each token's first
// rune, and rejoins with '_' — e.g. "claude-opus-4-5" -> "Claude_Opus_4_5".
func capitalizeTokens(s string) string {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	for i, t := range tokens {
		if t == "" {
			continue
		}
		runes := []rune(t)
		runes[0] = unicode.ToUpper(runes[0])
		tokens[i] = string(runes)
	}
	return strings.Join(tokens, "_")
}

// ClientSessionID derives the "agent-<first 12 hex>" client session id from
// an agent_uuid's hex representation (no dashes).
func ClientSessionID(agentUUIDHex string) string {
	stripped := strings.ReplaceAll(agentUUIDHex, "-", "")
	if len(stripped) > 12 {
		stripped = stripped[:12]
	}
	return "agent-" + stripped
}
