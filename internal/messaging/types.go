// Package messaging defines the decentralized-messaging transport boundary:
// conversation and participant types, the Client interface consumed by the
// rest of the system, and the client lifecycle manager.
package messaging

import (
	"fmt"
	"strings"
	"time"
)

// Environment selects the messaging network the client registers against.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvProduction Environment = "production"
)

// ParseEnvironment validates and normalizes a raw environment name.
func ParseEnvironment(raw string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case EnvLocal:
		return EnvLocal, nil
	case EnvDev:
		return EnvDev, nil
	case EnvProduction:
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unsupported messaging environment: %q", raw)
	}
}

// ConversationKind distinguishes direct chats from group threads. The kind
// is resolved once at the transport boundary rather than inferred at call
// sites.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation is a chat thread on the messaging network.
type Conversation struct {
	ID   string
	Kind ConversationKind
}

// IdentifierKind names the on-chain identity scheme an identifier uses.
type IdentifierKind string

// IdentifierEthereum is the only identifier kind the bot can evaluate
// against its allowlist and map to catalog usernames.
const IdentifierEthereum IdentifierKind = "ethereum"

// Identifier is one on-chain identity attached to a participant.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// Participant is a conversation member together with its identifiers.
type Participant struct {
	InboxID     string       `json:"inbox_id"`
	Identifiers []Identifier `json:"identifiers"`
}

// ContentTypeText marks plain text message content. Other content types
// (reactions, attachments, read receipts) are transport noise to this bot.
const ContentTypeText = "text"

// Message is an inbound event from the message stream.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderInboxID  string    `json:"sender_inbox_id"`
	ContentType    string    `json:"content_type"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
}

// Installation is a registered device/session for a messaging identity.
// The network enforces a hard cap on concurrent installations per identity.
type Installation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
