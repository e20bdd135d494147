// Package webhook implements the authenticated push-notification
// receiver: HMAC signature verification, the callback-verification
// handshake, and at-most-once delivery of notifications to a sink.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/bottany/registry-engine/internal/telemetry"
)

// Platform convention headers on every callback delivery.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
)

// Message types the platform sends.
const (
	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"
)

// signaturePrefix precedes the hex HMAC in the signature header.
const signaturePrefix = "sha256="

// defaultEventTypes is the set of subscription types forwarded to the
// sink. Anything else is acked and dropped.
var defaultEventTypes = map[string]struct{}{
	"stream.online":       {},
	"stream.offline":      {},
	"channel.clip.create": {},
}

// maxBodySize bounds a callback body. Platform payloads are small.
const maxBodySize = 1 << 20

// Handler lifecycle states.
const (
	stateAwaitingHandshake int32 = iota
	stateVerified
	stateDraining
)

// Handler terminates the webhook callback endpoint. All requests are
// signature-checked before anything else happens, including challenge
// echoes. Verified notifications reach the sink at most once per
// message id.
type Handler struct {
	secret     []byte
	sink       Sink
	dedup      *dedupSet
	eventTypes map[string]struct{}
	metrics    *telemetry.WebhookMetrics
	clock      func() time.Time

	state atomic.Int32
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithMetrics attaches webhook metrics.
func WithMetrics(m *telemetry.WebhookMetrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithDedupWindow overrides the deduplication window, for tests.
func WithDedupWindow(window time.Duration) HandlerOption {
	return func(h *Handler) {
		h.dedup = newDedupSet(window)
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithEventTypes overrides the subscription types forwarded to the sink.
func WithEventTypes(types ...string) HandlerOption {
	return func(h *Handler) {
		h.eventTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			h.eventTypes[t] = struct{}{}
		}
	}
}

// NewHandler creates a webhook handler with the given shared secret and
// sink. An empty secret means every delivery is rejected; the server
// still runs so the misconfiguration is observable.
func NewHandler(secret string, sink Sink, opts ...HandlerOption) *Handler {
	h := &Handler{
		secret:     []byte(secret),
		sink:       sink,
		dedup:      newDedupSet(defaultDedupWindow),
		eventTypes: defaultEventTypes,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Drain moves the handler into the draining state. New notifications
// are refused with 503 so the platform redelivers them after restart.
func (h *Handler) Drain() {
	h.state.Store(stateDraining)
}

// notificationBody is the envelope of a signed callback.
type notificationBody struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// ServeHTTP handles one callback delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logr.FromContextOrDiscard(r.Context())

	if h.state.Load() == stateDraining {
		h.countRequest("draining")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.countRequest("read_failed")
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	messageID := r.Header.Get(headerMessageID)
	timestamp := r.Header.Get(headerMessageTimestamp)
	signature := r.Header.Get(headerMessageSignature)
	messageType := r.Header.Get(headerMessageType)

	// Nothing is processed before the signature checks out. A
	// challenge echoed for an unsigned request would verify a
	// subscription we never authenticated.
	if !h.verifySignature(messageID, timestamp, body, signature) {
		log.Info("Webhook signature rejected", "messageId", messageID, "type", messageType)
		h.countRequest("bad_signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload notificationBody
	if err := json.Unmarshal(body, &payload); err != nil {
		h.countRequest("malformed")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch messageType {
	case messageTypeVerification:
		h.state.CompareAndSwap(stateAwaitingHandshake, stateVerified)
		log.Info("Webhook handshake verified", "messageId", messageID)
		h.countRequest("handshake")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(payload.Challenge))

	case messageTypeRevocation:
		status := payload.Subscription.Status
		if status == "" {
			status = "revoked"
		}
		log.Info("Webhook subscription revoked",
			"subscriptionType", payload.Subscription.Type, "status", status)
		h.countRequest("revocation")
		h.ack(w)

	case messageTypeNotification:
		h.handleNotification(w, r, messageID, &payload)

	default:
		log.Info("Webhook message type unknown, dropped",
			"messageId", messageID, "type", messageType)
		h.countRequest("unknown_type")
		h.ack(w)
	}
}

// handleNotification delivers one verified notification at most once.
// Subscription types outside the forwarded set are acked and dropped.
func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request, messageID string, payload *notificationBody) {
	log := logr.FromContextOrDiscard(r.Context())
	now := h.clock()

	if _, known := h.eventTypes[payload.Subscription.Type]; !known {
		log.Info("Webhook event type not subscribed, dropped",
			"messageId", messageID, "eventType", payload.Subscription.Type)
		h.countRequest("unknown_event_type")
		h.ack(w)
		return
	}

	if h.dedup.observe(messageID, now) {
		log.V(1).Info("Webhook redelivery dropped", "messageId", messageID)
		h.countRequest("duplicate")
		if h.metrics != nil {
			h.metrics.CountDedupHit()
		}
		h.ack(w)
		return
	}

	event := Event{
		MessageID:  messageID,
		Type:       payload.Subscription.Type,
		Payload:    payload.Event,
		ReceivedAt: now,
	}
	if err := h.sink.Deliver(r.Context(), event); err != nil {
		// The delivery is still acked; the id is marked seen, so the
		// platform's retry would be a duplicate anyway.
		log.Error(err, "Sink delivery failed", "messageId", messageID)
	}
	h.countRequest("delivered")
	h.ack(w)
}

// verifySignature recomputes the HMAC over messageId + timestamp + body
// and compares it against the signature header in constant time.
func (h *Handler) verifySignature(messageID, timestamp string, body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	if len(signature) <= len(signaturePrefix) || signature[:len(signaturePrefix)] != signaturePrefix {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature[len(signaturePrefix):]))
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) countRequest(result string) {
	if h.metrics != nil {
		h.metrics.CountRequest(result)
	}
}
