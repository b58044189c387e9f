package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EventProtocol is the first subprotocol offered during the handshake. It
// identifies the event-channel wire protocol.
const EventProtocol = "aws-appsync-event-ws"

const authHeaderPrefix = "header-"

// Authorization is the credential block sent both in the handshake
// subprotocol (encoded) and in the subscribe frame (in clear).
type Authorization struct {
	Host          string `json:"host"`
	Authorization string `json:"Authorization"`
}

// NewAuthorization validates host and token and returns the credential block.
// An empty host or token yields a [ConfigurationError].
func NewAuthorization(host, token string) (Authorization, error) {
	if strings.TrimSpace(host) == "" {
		return Authorization{}, &ConfigurationError{Field: "host", Reason: "is required"}
	}
	if strings.TrimSpace(token) == "" {
		return Authorization{}, &ConfigurationError{Field: "token", Reason: "is required"}
	}
	return Authorization{Host: host, Authorization: token}, nil
}

// EncodeAuthSubprotocol returns the "header-<base64url>" subprotocol token
// for host and token.
//
// The credential block is serialized as compact JSON ({"host":..,
// "Authorization":..}) and encoded with unpadded URL-safe base64. The result
// is deterministic for a given input.
func EncodeAuthSubprotocol(host, token string) (string, error) {
	auth, err := NewAuthorization(host, token)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("failed to encode authorization: %w", err)
	}
	return authHeaderPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeAuthSubprotocol reverses [EncodeAuthSubprotocol].
func DecodeAuthSubprotocol(protocol string) (Authorization, error) {
	encoded, ok := strings.CutPrefix(protocol, authHeaderPrefix)
	if !ok {
		return Authorization{}, fmt.Errorf("subprotocol %q has no %q prefix", protocol, authHeaderPrefix)
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Authorization{}, fmt.Errorf("failed to decode authorization: %w", err)
	}
	var auth Authorization
	if err := json.Unmarshal(data, &auth); err != nil {
		return Authorization{}, fmt.Errorf("failed to parse authorization: %w", err)
	}
	return auth, nil
}

// TokenExpiry reports the exp claim of a JWT bearer token without verifying
// its signature. API keys and other opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Redact returns a form of a credential that is safe to log.
func Redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}
