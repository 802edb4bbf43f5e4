package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints room credentials as HS256 JWTs carrying a video grant,
// the shape the provider's media servers verify. The signing key pair is the
// provider API key/secret.
type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	clock     func() time.Time
}

func NewTokenIssuer(apiKey, apiSecret string) (*TokenIssuer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("rtc: api key and secret are required")
	}
	return &TokenIssuer{apiKey: apiKey, apiSecret: []byte(apiSecret), clock: time.Now}, nil
}

// VideoGrant is the room capability set embedded in a credential.
type VideoGrant struct {
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	Room       string `json:"room,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomList   bool   `json:"roomList,omitempty"`

	CanPublish           bool `json:"canPublish"`
	CanSubscribe         bool `json:"canSubscribe"`
	CanPublishAudio      bool `json:"canPublishAudio"`
	CanPublishVideo      bool `json:"canPublishVideo"`
	CanPublishData       bool `json:"canPublishData"`
	CanUpdateOwnMetadata bool `json:"canUpdateOwnMetadata,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims

	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// IssueCredential mints a participant credential scoped to one room.
//
// Capability rules:
// - audio and video calls may publish audio
// - only video calls may publish video
// - data channels are always allowed
// - admins additionally get roomAdmin and roomCreate
func (t *TokenIssuer) IssueCredential(req CredentialRequest) (string, error) {
	if req.Identity == "" || req.RoomName == "" {
		return "", errors.New("rtc: identity and room name are required")
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	now := t.clock().UTC()

	grant := VideoGrant{
		RoomJoin:             true,
		Room:                 req.RoomName,
		CanPublish:           true,
		CanSubscribe:         true,
		CanPublishAudio:      req.CallType == "audio" || req.CallType == "video",
		CanPublishVideo:      req.CallType == "video",
		CanPublishData:       true,
		CanUpdateOwnMetadata: true,
	}
	if req.IsAdmin {
		grant.RoomAdmin = true
		grant.RoomCreate = true
	}

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   req.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  req.DisplayName,
		Video: grant,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.apiSecret)
	if err != nil {
		return "", fmt.Errorf("rtc: sign credential: %w", err)
	}
	return signed, nil
}

// adminToken mints a short-lived credential for provider API calls.
func (t *TokenIssuer) adminToken(ttl time.Duration) (string, error) {
	now := t.clock().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.apiKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: VideoGrant{
			RoomCreate:   true,
			RoomAdmin:    true,
			RoomList:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.apiSecret)
}

var errBodyDigestMismatch = errors.New("rtc: webhook body digest mismatch")

// parseWith verifies a token signed with the provider secret and decodes it
// into claims. Used by the webhook receiver and by tests.
func (t *TokenIssuer) parseWith(raw string, claims jwt.Claims) (*jwt.Token, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.clock().UTC() }),
	)
	tok, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.apiSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if iss, _ := claims.GetIssuer(); iss != t.apiKey {
		return nil, errors.New("rtc: token issuer mismatch")
	}
	return tok, nil
}

// parseCredential verifies a participant credential and returns its claims.
func (t *TokenIssuer) parseCredential(raw string) (tokenClaims, error) {
	var claims tokenClaims
	if _, err := t.parseWith(raw, &claims); err != nil {
		return tokenClaims{}, err
	}
	return claims, nil
}
