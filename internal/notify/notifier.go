// Package notify delivers outbound messages to wallet identifiers by
// finding their existing direct conversation with the bot.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/reelgate/reelgate/internal/messaging"
	"github.com/reelgate/reelgate/internal/metrics"
)

// Notifier resolves identifiers to direct conversations and sends into
// them. It never creates conversations: a wallet that has not messaged the
// bot first has no channel to be notified on.
type Notifier struct {
	logger  *slog.Logger
	client  messaging.Client
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]string // lowercased identifier -> conversation id
}

// New creates a notifier over an established messaging client.
func New(log *slog.Logger, client messaging.Client, m *metrics.Metrics) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		logger:  log.With(slog.String("component", "notify")),
		client:  client,
		metrics: m,
		cache:   map[string]string{},
	}
}

// Notify sends text to the identifier's direct conversation. A missing
// conversation is logged and swallowed: it is an expected state, not a
// delivery failure.
func (n *Notifier) Notify(ctx context.Context, identifier, text string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return fmt.Errorf("empty identifier")
	}

	conversationID, err := n.conversationFor(ctx, identifier)
	if err != nil {
		n.count("errored")
		return fmt.Errorf("resolve conversation for %s: %w", identifier, err)
	}
	if conversationID == "" {
		n.logger.Info("no direct conversation for identifier, skipping notification",
			slog.String("identifier", identifier))
		n.count("no_conversation")
		return nil
	}

	if err := n.client.Send(ctx, conversationID, text); err != nil {
		// The cached conversation may have gone stale. Drop it so the next
		// attempt resolves again.
		n.forget(identifier)
		n.count("errored")
		return fmt.Errorf("send to %s: %w", identifier, err)
	}
	n.count("delivered")
	return nil
}

func (n *Notifier) conversationFor(ctx context.Context, identifier string) (string, error) {
	n.mu.Lock()
	cached, ok := n.cache[identifier]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	conversations, err := n.client.ListConversations(ctx)
	if err != nil {
		return "", err
	}
	for _, conv := range conversations {
		if conv.Kind != messaging.ConversationDirect {
			continue
		}
		members, err := n.client.Members(ctx, conv.ID)
		if err != nil {
			n.logger.Warn("listing members failed",
				slog.String("conversation_id", conv.ID),
				slog.String("error", err.Error()))
			continue
		}
		for _, member := range members {
			if member.InboxID == n.client.InboxID() {
				continue
			}
			for _, id := range messaging.ResolveIdentifiers(member) {
				if strings.ToLower(id) == identifier {
					n.remember(identifier, conv.ID)
					return conv.ID, nil
				}
			}
		}
	}
	return "", nil
}

func (n *Notifier) remember(identifier, conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache[identifier] = conversationID
}

func (n *Notifier) forget(identifier string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cache, identifier)
}

func (n *Notifier) count(result string) {
	if n.metrics != nil {
		n.metrics.Notifications.WithLabelValues(result).Inc()
	}
}
