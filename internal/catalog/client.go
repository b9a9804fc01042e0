package catalog

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

const requestTimeout = 20 * time.Second

// Client talks to the catalog backend REST API. Requests are attributed to
// the backend username mapped from the requester's wallet identifier.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	users   map[string]string
	http    *http.Client
}

// NewClient creates a catalog client. users maps lowercased wallet
// identifiers to backend usernames.
func NewClient(log *slog.Logger, baseURL, apiKey string, users map[string]string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		logger:  log.With(slog.String("component", "catalog")),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		users:   users,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// UsernameFor maps a wallet identifier to its backend username.
// Returns ErrUnmappedIdentifier when no mapping is configured.
func (c *Client) UsernameFor(identifier string) (string, error) {
	username, ok := c.users[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok || username == "" {
		return "", fmt.Errorf("%w: %s", ErrUnmappedIdentifier, identifier)
	}
	return username, nil
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// SearchMovies queries the movie catalog.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]Result, error) {
	return c.search(ctx, KindMovie, query)
}

// SearchTV queries the show catalog.
func (c *Client) SearchTV(ctx context.Context, query string) ([]Result, error) {
	return c.search(ctx, KindTV, query)
}

func (c *Client) search(ctx context.Context, kind MediaKind, query string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/api/v1/search/%s?query=%s", c.baseURL, kind, url.QueryEscape(strings.TrimSpace(query)))
	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("search %s %q: %w", kind, query, err)
	}
	for i := range resp.Results {
		resp.Results[i].Kind = kind
	}
	return resp.Results, nil
}

type submitRequest struct {
	MediaID   int    `json:"mediaId"`
	MediaType string `json:"mediaType"`
	Username  string `json:"username"`
}

// SubmitRequest submits a media request attributed to the requester's
// mapped username. Expected backend refusals surface as
// ErrAlreadyRequested or ErrNoPermission; an unmapped identifier surfaces
// as ErrUnmappedIdentifier before any network call.
func (c *Client) SubmitRequest(ctx context.Context, requesterIdentifier string, item Result) error {
	username, err := c.UsernameFor(requesterIdentifier)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/api/v1/request"
	err = c.doJSON(ctx, http.MethodPost, endpoint, submitRequest{
		MediaID:   item.ID,
		MediaType: string(item.Kind),
		Username:  username,
	}, nil)
	if err != nil {
		return err
	}
	c.logger.Info("request submitted",
		slog.Int("item_id", item.ID),
		slog.String("kind", string(item.Kind)),
		slog.String("username", username))
	return nil
}

type webhookSettings struct {
	URL     string `json:"url"`
	Secret  string `json:"secret"`
	Enabled bool   `json:"enabled"`
}

// RegisterWebhook points the backend's completion notifications at this
// bot's public webhook endpoint.
func (c *Client) RegisterWebhook(ctx context.Context, publicURL, secret string) error {
	endpoint := c.baseURL + "/api/v1/settings/webhook"
	err := c.doJSON(ctx, http.MethodPost, endpoint, webhookSettings{
		URL:     strings.TrimSpace(publicURL),
		Secret:  secret,
		Enabled: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	c.logger.Info("webhook registered", slog.String("url", publicURL))
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
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
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var backendErr backendError
	if json.Unmarshal(payload, &backendErr) == nil && backendErr.IsError {
		return classifyBackendError(backendErr)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("catalog backend: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
