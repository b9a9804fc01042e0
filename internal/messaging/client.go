package messaging

import "context"

// Client is the ready messaging handle used by the triage engine and the
// outbound notifier. Implementations are safe for concurrent use.
type Client interface {
	// InboxID returns the bot's own inbox identifier; the triage engine
	// uses it to ignore the bot's own messages and exclude the bot from
	// member enumeration.
	InboxID() string
	// Address returns the bot account's public wallet address.
	Address() string
	ListConversations(ctx context.Context) ([]Conversation, error)
	ConversationByID(ctx context.Context, id string) (Conversation, error)
	Members(ctx context.Context, conversationID string) ([]Participant, error)
	Send(ctx context.Context, conversationID, text string) error
	// Stream delivers inbound messages until ctx is cancelled. The channel
	// is closed when the underlying stream ends; callers that need the
	// stream for the process lifetime must re-open it.
	Stream(ctx context.Context) (<-chan Message, error)
}

// ClientConfig is the material needed to register a messaging client.
type ClientConfig struct {
	Environment   Environment
	GatewayURL    string
	SigningKey    string
	EncryptionKey string
}

// Transport dials the messaging network and performs the administrative
// installation calls used by the lifecycle manager's recovery path.
type Transport interface {
	Dial(ctx context.Context, cfg ClientConfig) (Client, error)
	ListInstallations(ctx context.Context, inboxID string) ([]Installation, error)
	// RevokeInstallations removes the given installations via a call signed
	// with the account key the transport was dialed with.
	RevokeInstallations(ctx context.Context, inboxID string, installationIDs []string) error
}
