package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/reelgate/reelgate/internal/catalog"
	"github.com/reelgate/reelgate/internal/metrics"
	"github.com/reelgate/reelgate/internal/tracker"
)

const tokenHeader = "X-Webhook-Token"

// Notifier is the slice of the outbound notifier the handler needs.
type Notifier interface {
	Notify(ctx context.Context, identifier, text string) error
}

// Payload is the completion callback body posted by the catalog backend.
type Payload struct {
	NotificationType string `json:"notificationType"`
	RequestStatus    string `json:"requestStatus"`
	MediaKind        string `json:"mediaKind"`
	ItemID           int    `json:"itemId"`
	Title            string `json:"title"`
	Reason           string `json:"reason"`
}

// Options configures the ingress perimeter.
type Options struct {
	Secret string
	// TrustProxyHeader makes the handler resolve the caller from the first
	// X-Forwarded-For entry instead of the socket peer. Only safe behind a
	// reverse proxy that overwrites the header.
	TrustProxyHeader bool
	// Debug logs rejected attempts with their (redacted) details.
	Debug bool
}

// Handler authenticates completion callbacks and correlates them back to
// the requesting identifier.
type Handler struct {
	logger    *slog.Logger
	allowlist *Allowlist
	opts      Options
	requests  *tracker.Tracker
	notifier  Notifier
	metrics   *metrics.Metrics
}

// NewHandler creates the webhook handler.
func NewHandler(log *slog.Logger, allowlist *Allowlist, opts Options, requests *tracker.Tracker, notifier Notifier, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		logger:    log.With(slog.String("component", "webhook")),
		allowlist: allowlist,
		opts:      opts,
		requests:  requests,
		notifier:  notifier,
		metrics:   m,
	}
}

// Register mounts the webhook routes.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/webhook", h.handle)
	e.GET("/health", h.health)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handle gates the request before touching the payload. Every gate
// failure is a bare 403 so callers learn nothing about which check
// tripped.
func (h *Handler) handle(c echo.Context) error {
	// One id per call so gate rejections and processing failures for the
	// same request correlate in the logs.
	log := h.logger.With(slog.String("request_id", uuid.NewString()))

	addr, err := h.callerAddr(c)
	if err != nil {
		h.rejected(log, c, "unparsable caller address")
		return c.NoContent(http.StatusForbidden)
	}
	if !h.allowlist.Contains(addr) {
		h.rejected(log, c, "caller not in ip allowlist")
		return c.NoContent(http.StatusForbidden)
	}
	if !h.secretMatches(c.Request()) {
		h.rejected(log, c, "missing or wrong shared secret")
		return c.NoContent(http.StatusForbidden)
	}
	h.countWebhook("accepted")

	var payload Payload
	if err := c.Bind(&payload); err != nil {
		log.Warn("malformed webhook payload", slog.String("error", err.Error()))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}

	if err := h.process(c.Request().Context(), log, payload); err != nil {
		log.Error("webhook processing failed",
			slog.Int("item_id", payload.ItemID),
			slog.String("status", payload.RequestStatus),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) process(ctx context.Context, log *slog.Logger, payload Payload) error {
	if strings.EqualFold(strings.TrimSpace(payload.NotificationType), "test") {
		log.Info("test notification received")
		return nil
	}

	status := strings.ToLower(strings.TrimSpace(payload.RequestStatus))
	switch status {
	case "available", "partially available", "denied":
	default:
		log.Debug("ignoring notification with non-actionable status",
			slog.String("status", payload.RequestStatus))
		return nil
	}
	if payload.ItemID == 0 {
		log.Debug("ignoring notification without item id")
		return nil
	}
	kind, err := catalog.ParseMediaKind(payload.MediaKind)
	if err != nil {
		log.Debug("ignoring notification with unknown media kind",
			slog.String("media_kind", payload.MediaKind))
		return nil
	}

	req, ok := h.requests.Requester(payload.ItemID, kind)
	if !ok {
		// Not an error. The request may have been made outside this bot or
		// already resolved.
		log.Info("no tracked request for notification",
			slog.Int("item_id", payload.ItemID),
			slog.String("kind", string(kind)))
		return nil
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = req.Title
	}
	var text string
	switch status {
	case "available":
		text = fmt.Sprintf("Good news! %s is now available.", title)
	case "partially available":
		text = fmt.Sprintf("%s is partially available. More episodes are on the way.", title)
	case "denied":
		text = fmt.Sprintf("Your request for %s was declined.", title)
		if reason := strings.TrimSpace(payload.Reason); reason != "" {
			text += " Reason: " + reason
		}
	}

	if err := h.notifier.Notify(ctx, req.Identifier, text); err != nil {
		return fmt.Errorf("notify %s: %w", req.Identifier, err)
	}

	// Partial availability keeps the entry so later episodes of the same
	// request still reach the requester.
	if status == "available" || status == "denied" {
		h.requests.Remove(payload.ItemID, kind)
	}
	return nil
}

func (h *Handler) callerAddr(c echo.Context) (netip.Addr, error) {
	if h.opts.TrustProxyHeader {
		if forwarded := c.Request().Header.Get(echo.HeaderXForwardedFor); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			return netip.ParseAddr(first)
		}
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		host = c.Request().RemoteAddr
	}
	return netip.ParseAddr(host)
}

func (h *Handler) secretMatches(r *http.Request) bool {
	if h.opts.Secret == "" {
		return false
	}
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token == h.opts.Secret {
			return true
		}
	}
	return r.Header.Get(tokenHeader) == h.opts.Secret
}

func (h *Handler) rejected(log *slog.Logger, c echo.Context, reason string) {
	h.countWebhook("rejected")
	if !h.opts.Debug {
		return
	}
	log.Warn("webhook request rejected",
		slog.String("reason", reason),
		slog.String("remote_addr", c.Request().RemoteAddr),
		slog.String("forwarded_for", c.Request().Header.Get(echo.HeaderXForwardedFor)),
		slog.Bool("authorization_present", c.Request().Header.Get(echo.HeaderAuthorization) != ""),
		slog.Bool("token_present", c.Request().Header.Get(tokenHeader) != ""))
}

func (h *Handler) countWebhook(result string) {
	if h.metrics != nil {
		h.metrics.WebhookRequests.WithLabelValues(result).Inc()
	}
}
