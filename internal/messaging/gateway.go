package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default gateway endpoints per environment. A configured gateway_url
// overrides these.
var defaultGatewayURLs = map[Environment]string{
	EnvLocal:      "http://127.0.0.1:5555",
	EnvDev:        "https://gateway.dev.reelgate.net",
	EnvProduction: "https://gateway.reelgate.net",
}

// DefaultGatewayURL returns the built-in gateway endpoint for an environment.
func DefaultGatewayURL(env Environment) string {
	return defaultGatewayURLs[env]
}

const (
	gatewayRequestTimeout = 30 * time.Second
	streamPollWait        = 25 * time.Second
)

// GatewayTransport talks to the local messaging gateway daemon over HTTP.
// The daemon owns the protocol cryptography; this client only moves JSON.
type GatewayTransport struct {
	logger *slog.Logger
	http   *http.Client

	// adminBaseURL is remembered from the last Dial so the recovery path
	// targets the same gateway the registration failed against.
	adminBaseURL string
}

// NewGatewayTransport creates a Transport over the messaging gateway.
func NewGatewayTransport(log *slog.Logger) *GatewayTransport {
	if log == nil {
		log = slog.Default()
	}
	return &GatewayTransport{
		logger: log.With(slog.String("component", "gateway")),
		http:   &http.Client{Timeout: gatewayRequestTimeout},
	}
}

type gatewayError struct {
	Message string `json:"error"`
}

type registerRequest struct {
	Environment   string `json:"environment"`
	SigningKey    string `json:"signing_key"`
	EncryptionKey string `json:"encryption_key"`
}

type registerResponse struct {
	InboxID string `json:"inbox_id"`
	Address string `json:"address"`
}

// Dial registers a client installation with the gateway and returns the
// ready client handle.
func (t *GatewayTransport) Dial(ctx context.Context, cfg ClientConfig) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/")
	if baseURL == "" {
		baseURL = DefaultGatewayURL(cfg.Environment)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no gateway endpoint for environment %q", cfg.Environment)
	}
	t.adminBaseURL = baseURL

	var resp registerResponse
	err := t.doJSON(ctx, http.MethodPost, baseURL+"/v1/client", registerRequest{
		Environment:   string(cfg.Environment),
		SigningKey:    cfg.SigningKey,
		EncryptionKey: cfg.EncryptionKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.InboxID == "" {
		return nil, fmt.Errorf("gateway returned empty inbox id")
	}
	return &gatewayClient{
		transport: t,
		baseURL:   baseURL,
		inboxID:   resp.InboxID,
		address:   resp.Address,
	}, nil
}

// ListInstallations queries the current installations for an inbox.
func (t *GatewayTransport) ListInstallations(ctx context.Context, inboxID string) ([]Installation, error) {
	base := t.adminBaseURL
	if base == "" {
		base = DefaultGatewayURL(EnvProduction)
	}
	var out []Installation
	endpoint := fmt.Sprintf("%s/v1/inboxes/%s/installations", base, url.PathEscape(inboxID))
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeInstallations removes the given installations via a gateway call
// signed with the account key provided at Dial time.
func (t *GatewayTransport) RevokeInstallations(ctx context.Context, inboxID string, installationIDs []string) error {
	base := t.adminBaseURL
	if base == "" {
		base = DefaultGatewayURL(EnvProduction)
	}
	endpoint := fmt.Sprintf("%s/v1/inboxes/%s/installations/revoke", base, url.PathEscape(inboxID))
	return t.doJSON(ctx, http.MethodPost, endpoint, map[string]any{
		"installation_ids": installationIDs,
	}, nil)
}

func (t *GatewayTransport) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var gwErr gatewayError
		if json.Unmarshal(payload, &gwErr) == nil && gwErr.Message != "" {
			return fmt.Errorf("gateway: %s", gwErr.Message)
		}
		return fmt.Errorf("gateway: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type gatewayClient struct {
	transport *GatewayTransport
	baseURL   string
	inboxID   string
	address   string
}

func (c *gatewayClient) InboxID() string { return c.inboxID }
func (c *gatewayClient) Address() string { return c.address }

func (c *gatewayClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.transport.doJSON(ctx, http.MethodGet, c.baseURL+"/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) ConversationByID(ctx context.Context, id string) (Conversation, error) {
	var out Conversation
	endpoint := c.baseURL + "/v1/conversations/" + url.PathEscape(id)
	if err := c.transport.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Conversation{}, err
	}
	return out, nil
}

func (c *gatewayClient) Members(ctx context.Context, conversationID string) ([]Participant, error) {
	var out []Participant
	endpoint := c.baseURL + "/v1/conversations/" + url.PathEscape(conversationID) + "/members"
	if err := c.transport.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) Send(ctx context.Context, conversationID, text string) error {
	endpoint := c.baseURL + "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.transport.doJSON(ctx, http.MethodPost, endpoint, map[string]string{"text": text}, nil)
}

type streamPage struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor"`
}

// Stream long-polls the gateway message feed and forwards each message on
// the returned channel until ctx is cancelled.
func (c *gatewayClient) Stream(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 32)
	go func() {
		defer close(out)
		cursor := ""
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			endpoint := fmt.Sprintf("%s/v1/messages?wait=%ds&cursor=%s",
				c.baseURL, int(streamPollWait.Seconds()), url.QueryEscape(cursor))
			var page streamPage
			if err := c.transport.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.transport.logger.Warn("message poll failed", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			cursor = page.Cursor
			for _, msg := range page.Messages {
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
			}
		}
	}()
	return out, nil
}
