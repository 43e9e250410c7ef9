package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"
)

// VideoGrant mirrors the LiveKit access token grant claim.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// TokenMinter signs LiveKit-compatible join tokens with the relay API key pair.
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

var ErrMissingCredentials = fmt.Errorf("relay api key and secret are not configured")

func NewTokenMinter(apiKey, apiSecret string, ttl time.Duration) *TokenMinter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenMinter{
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: strings.TrimSpace(apiSecret),
		ttl:       ttl,
	}
}

func (m *TokenMinter) Configured() bool {
	return m.apiKey != "" && m.apiSecret != ""
}

// Mint issues a join token for identity in room, granting publish and
// subscribe. The token shape matches what LiveKit servers verify.
func (m *TokenMinter) Mint(room, identity string) (string, error) {
	if !m.Configured() {
		return "", ErrMissingCredentials
	}
	if strings.TrimSpace(room) == "" {
		return "", fmt.Errorf("room is required")
	}
	if strings.TrimSpace(identity) == "" {
		return "", fmt.Errorf("identity is required")
	}

	at := auth.NewAccessToken(m.apiKey, m.apiSecret)
	canPublish := true
	canSubscribe := true
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(m.ttl)

	signed, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token minted with the same key pair and returns its claims.
func (m *TokenMinter) Verify(raw string) (identity string, grant VideoGrant, err error) {
	if !m.Configured() {
		return "", VideoGrant{}, ErrMissingCredentials
	}
	claims := &tokenClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.apiSecret), nil
	})
	if err != nil {
		return "", VideoGrant{}, fmt.Errorf("parse token: %w", err)
	}
	return claims.Subject, claims.Video, nil
}

// RoomName builds the deterministic room name for an agent test session.
func RoomName(agentID string, now time.Time) string {
	return fmt.Sprintf("test-%s-%d", agentID, now.Unix())
}
