package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// InstallationLimitError reports that the messaging network refused a new
// client registration because the identity already holds the maximum number
// of installations. ResolutionSteps is ordered, human-readable remediation
// guidance for the operator.
type InstallationLimitError struct {
	InboxID         string
	ResolutionSteps []string
	cause           error
}

func (e *InstallationLimitError) Error() string {
	return fmt.Sprintf("messaging identity has reached its installation limit (inbox %s): %v", e.InboxID, e.cause)
}

func (e *InstallationLimitError) Unwrap() error {
	return e.cause
}

// isInstallationLimit pattern-matches the transport's error text. The
// substring rules are the transport's de-facto error contract; they are
// kept here, in one place, so a contract change touches a single function.
func isInstallationLimit(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "installation") && strings.Contains(text, "registered")
}

// extractInboxID pulls the account's inbox identifier out of the transport
// error text. Returns empty when the text carries none, in which case
// automatic revocation is impossible.
var inboxIDPattern = regexp.MustCompile(`(?i)inbox(?:\s*id)?[:\s]+([0-9a-fA-F]{8,64})`)

func extractInboxID(text string) string {
	match := inboxIDPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

func newInstallationLimitError(inboxID string, cause error) *InstallationLimitError {
	steps := []string{
		"Revoke unused installations for this identity from another registered device.",
		"Use a different signing key for local development instead of the production identity.",
		"Wait for stale installations to expire on the network, then restart the bot.",
	}
	if inboxID != "" {
		steps = append(steps, "Set messaging.auto_revoke = true to let the bot revoke prior installations and retry on startup.")
	}
	return &InstallationLimitError{InboxID: inboxID, ResolutionSteps: steps, cause: cause}
}

// Builder constructs a ready messaging client from key material, detecting
// and optionally recovering from the network's per-identity installation
// cap. Repeated local restarts otherwise permanently lock the identity out.
type Builder struct {
	logger    *slog.Logger
	transport Transport
}

// NewBuilder creates a lifecycle Builder over the given transport.
func NewBuilder(log *slog.Logger, transport Transport) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		logger:    log.With(slog.String("component", "messaging")),
		transport: transport,
	}
}

// ValidateClientConfig checks key material and environment before any
// network call is attempted. Configuration errors must fail fast.
func ValidateClientConfig(cfg ClientConfig) error {
	if _, err := ParseEnvironment(string(cfg.Environment)); err != nil {
		return err
	}
	if !hexKeyPattern.MatchString(cfg.SigningKey) {
		return fmt.Errorf("signing key must be 64 hex characters")
	}
	if !hexKeyPattern.MatchString(cfg.EncryptionKey) {
		return fmt.Errorf("encryption key must be 64 hex characters")
	}
	return nil
}

// Build dials the transport and returns a ready client. When the transport
// reports the installation limit and autoRevoke is set, it revokes every
// current installation for the affected inbox and retries exactly once; a
// second failure is fatal. With autoRevoke unset it returns an
// *InstallationLimitError carrying ordered resolution steps.
func (b *Builder) Build(ctx context.Context, cfg ClientConfig, autoRevoke bool) (Client, error) {
	if b.transport == nil {
		return nil, fmt.Errorf("messaging transport not configured")
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return nil, err
	}

	client, err := b.transport.Dial(ctx, cfg)
	if err == nil {
		b.logger.Info("messaging client ready",
			slog.String("environment", string(cfg.Environment)),
			slog.String("inbox_id", client.InboxID()),
			slog.String("address", client.Address()))
		return client, nil
	}
	if !isInstallationLimit(err) {
		return nil, err
	}

	inboxID := extractInboxID(err.Error())
	if !autoRevoke || inboxID == "" {
		return nil, newInstallationLimitError(inboxID, err)
	}

	b.logger.Warn("installation limit reached, revoking prior installations",
		slog.String("inbox_id", inboxID))
	installations, listErr := b.transport.ListInstallations(ctx, inboxID)
	if listErr != nil {
		return nil, fmt.Errorf("list installations for inbox %s: %w", inboxID, listErr)
	}
	ids := make([]string, 0, len(installations))
	for _, inst := range installations {
		ids = append(ids, inst.ID)
	}
	if revokeErr := b.transport.RevokeInstallations(ctx, inboxID, ids); revokeErr != nil {
		return nil, fmt.Errorf("revoke %d installations for inbox %s: %w", len(ids), inboxID, revokeErr)
	}
	b.logger.Info("installations revoked", slog.String("inbox_id", inboxID), slog.Int("count", len(ids)))

	client, retryErr := b.transport.Dial(ctx, cfg)
	if retryErr != nil {
		return nil, fmt.Errorf("client creation failed after revoking installations: %w", retryErr)
	}
	b.logger.Info("messaging client ready after revocation",
		slog.String("environment", string(cfg.Environment)),
		slog.String("inbox_id", client.InboxID()))
	return client, nil
}
