package rtc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionEvents is what the webhook receiver needs from the call lifecycle
// layer. Implemented by the calls service; injected to keep this package
// provider-only.
type SessionEvents interface {
	// RoomFinished is invoked when the provider tears a room down (last
	// participant gone past the empty timeout).
	RoomFinished(ctx context.Context, roomName string) error
	// ParticipantLeft records a participant departure from a live room.
	ParticipantLeft(ctx context.Context, roomName, identity string) error
}

// WebhookEvent is the provider callback payload subset we act on.
type WebhookEvent struct {
	Event string `json:"event"`
	Room  *struct {
		Name string `json:"name"`
	} `json:"room,omitempty"`
	Participant *struct {
		Identity string `json:"identity"`
	} `json:"participant,omitempty"`
}

const (
	webhookEventRoomFinished    = "room_finished"
	webhookEventParticipantLeft = "participant_left"
)

// WebhookHandler receives provider callbacks. Each request carries a JWT in
// the Authorization header whose sha256 claim must match the body digest;
// anything else is rejected before parsing.
type WebhookHandler struct {
	Tokens *TokenIssuer
	Events SessionEvents
}

type webhookAuthClaims struct {
	tokenClaims
	Sha256 string `json:"sha256"`
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Tokens == nil || h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook receiver not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	raw = strings.TrimPrefix(raw, "Bearer ")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
		return
	}
	if err := h.verify(raw, body); err != nil {
		log.Warn("webhook verification failed", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	switch ev.Event {
	case webhookEventRoomFinished:
		if ev.Room == nil || ev.Room.Name == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room missing"})
			return
		}
		if err := h.Events.RoomFinished(ctx, ev.Room.Name); err != nil {
			// The provider retries on non-2xx; a missing session is fine,
			// anything else should be retried.
			log.Error("room_finished handling failed", "room", ev.Room.Name, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event handling failed"})
			return
		}
	case webhookEventParticipantLeft:
		if ev.Room == nil || ev.Room.Name == "" || ev.Participant == nil || ev.Participant.Identity == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room or participant missing"})
			return
		}
		if err := h.Events.ParticipantLeft(ctx, ev.Room.Name, ev.Participant.Identity); err != nil {
			log.Error("participant_left handling failed", "room", ev.Room.Name, "identity", ev.Participant.Identity, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event handling failed"})
			return
		}
	default:
		// Events we don't act on are acknowledged so the provider stops
		// retrying them.
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h WebhookHandler) verify(rawToken string, body []byte) error {
	claims, err := h.Tokens.parseWebhookToken(rawToken)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(digest[:])
	if claims.Sha256 != want {
		return errBodyDigestMismatch
	}
	return nil
}

func (t *TokenIssuer) parseWebhookToken(raw string) (webhookAuthClaims, error) {
	var claims webhookAuthClaims
	if _, err := t.parseWith(raw, &claims); err != nil {
		return webhookAuthClaims{}, err
	}
	return claims, nil
}
