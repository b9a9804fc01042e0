package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

const (
	testSigningKey    = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	testEncryptionKey = "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"
	testInboxID       = "9f8e7d6c5b4a39281706f5e4d3c2b1a0"
)

func limitError() error {
	return errors.New("client creation failed: 10/10 installations registered for InboxID: " + testInboxID)
}

type fakeClient struct {
	inboxID string
	address string
}

func (f *fakeClient) InboxID() string { return f.inboxID }
func (f *fakeClient) Address() string { return f.address }
func (f *fakeClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	return nil, nil
}
func (f *fakeClient) ConversationByID(ctx context.Context, id string) (Conversation, error) {
	return Conversation{}, nil
}
func (f *fakeClient) Members(ctx context.Context, conversationID string) ([]Participant, error) {
	return nil, nil
}
func (f *fakeClient) Send(ctx context.Context, conversationID, text string) error { return nil }
func (f *fakeClient) Stream(ctx context.Context) (<-chan Message, error)          { return nil, nil }

type fakeTransport struct {
	dialFunc   func(ctx context.Context, cfg ClientConfig) (Client, error)
	listFunc   func(ctx context.Context, inboxID string) ([]Installation, error)
	revokeFunc func(ctx context.Context, inboxID string, installationIDs []string) error
	dialCalls  int
}

func (f *fakeTransport) Dial(ctx context.Context, cfg ClientConfig) (Client, error) {
	f.dialCalls++
	if f.dialFunc == nil {
		return &fakeClient{inboxID: testInboxID, address: "0xbot"}, nil
	}
	return f.dialFunc(ctx, cfg)
}

func (f *fakeTransport) ListInstallations(ctx context.Context, inboxID string) ([]Installation, error) {
	if f.listFunc == nil {
		return nil, nil
	}
	return f.listFunc(ctx, inboxID)
}

func (f *fakeTransport) RevokeInstallations(ctx context.Context, inboxID string, installationIDs []string) error {
	if f.revokeFunc == nil {
		return nil
	}
	return f.revokeFunc(ctx, inboxID, installationIDs)
}

func validConfig() ClientConfig {
	return ClientConfig{
		Environment:   EnvDev,
		SigningKey:    testSigningKey,
		EncryptionKey: testEncryptionKey,
	}
}

func TestBuildFailsFastOnConfigErrors(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	builder := NewBuilder(nil, transport)

	cases := []ClientConfig{
		{Environment: "staging", SigningKey: testSigningKey, EncryptionKey: testEncryptionKey},
		{Environment: EnvDev, SigningKey: "short", EncryptionKey: testEncryptionKey},
		{Environment: EnvDev, SigningKey: testSigningKey, EncryptionKey: "zz"},
	}
	for _, cfg := range cases {
		if _, err := builder.Build(context.Background(), cfg, false); err == nil {
			t.Fatalf("expected config error for %+v", cfg)
		}
	}
	if transport.dialCalls != 0 {
		t.Fatalf("config errors must fail before any network call, got %d dials", transport.dialCalls)
	}
}

func TestBuildPropagatesUnrelatedErrors(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	transport := &fakeTransport{
		dialFunc: func(ctx context.Context, cfg ClientConfig) (Client, error) {
			return nil, dialErr
		},
	}
	builder := NewBuilder(nil, transport)

	_, err := builder.Build(context.Background(), validConfig(), true)
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error to propagate, got %v", err)
	}
	var limitErr *InstallationLimitError
	if errors.As(err, &limitErr) {
		t.Fatalf("unrelated error must not be classified as installation limit")
	}
}

func TestBuildLimitWithoutAutoRevokeReturnsStructuredError(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		dialFunc: func(ctx context.Context, cfg ClientConfig) (Client, error) {
			return nil, limitError()
		},
	}
	builder := NewBuilder(nil, transport)

	_, err := builder.Build(context.Background(), validConfig(), false)
	var limitErr *InstallationLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected InstallationLimitError, got %v", err)
	}
	if limitErr.InboxID != testInboxID {
		t.Fatalf("expected inbox id %s, got %s", testInboxID, limitErr.InboxID)
	}
	if len(limitErr.ResolutionSteps) != 4 {
		t.Fatalf("expected 4 resolution steps when auto-revoke is available, got %d", len(limitErr.ResolutionSteps))
	}
	if transport.dialCalls != 1 {
		t.Fatalf("expected no retry without auto-revoke, got %d dials", transport.dialCalls)
	}
}

func TestBuildLimitWithoutInboxIDHasThreeSteps(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		dialFunc: func(ctx context.Context, cfg ClientConfig) (Client, error) {
			return nil, errors.New("too many installations already registered for this identity")
		},
	}
	builder := NewBuilder(nil, transport)

	_, err := builder.Build(context.Background(), validConfig(), false)
	var limitErr *InstallationLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected InstallationLimitError, got %v", err)
	}
	if len(limitErr.ResolutionSteps) != 3 {
		t.Fatalf("expected 3 resolution steps when auto-revoke is unavailable, got %d", len(limitErr.ResolutionSteps))
	}
}

func TestBuildAutoRevokeRetriesOnce(t *testing.T) {
	t.Parallel()

	installations := []Installation{
		{ID: uuid.NewString()},
		{ID: uuid.NewString()},
		{ID: uuid.NewString()},
	}
	var revoked []string
	transport := &fakeTransport{
		listFunc: func(ctx context.Context, inboxID string) ([]Installation, error) {
			if inboxID != testInboxID {
				t.Fatalf("expected list for inbox %s, got %s", testInboxID, inboxID)
			}
			return installations, nil
		},
		revokeFunc: func(ctx context.Context, inboxID string, installationIDs []string) error {
			revoked = installationIDs
			return nil
		},
	}
	transport.dialFunc = func(ctx context.Context, cfg ClientConfig) (Client, error) {
		if transport.dialCalls == 1 {
			return nil, limitError()
		}
		return &fakeClient{inboxID: testInboxID, address: "0xbot"}, nil
	}
	builder := NewBuilder(nil, transport)

	client, err := builder.Build(context.Background(), validConfig(), true)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if client.InboxID() != testInboxID {
		t.Fatalf("unexpected client inbox: %s", client.InboxID())
	}
	if len(revoked) != len(installations) {
		t.Fatalf("expected all %d installations revoked, got %d", len(installations), len(revoked))
	}
	if transport.dialCalls != 2 {
		t.Fatalf("expected exactly one retry, got %d dials", transport.dialCalls)
	}
}

func TestBuildAutoRevokeSecondFailureIsFatal(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		dialFunc: func(ctx context.Context, cfg ClientConfig) (Client, error) {
			return nil, limitError()
		},
	}
	builder := NewBuilder(nil, transport)

	_, err := builder.Build(context.Background(), validConfig(), true)
	if err == nil {
		t.Fatalf("expected error after failed retry")
	}
	if transport.dialCalls != 2 {
		t.Fatalf("expected exactly two dials, got %d", transport.dialCalls)
	}
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	if !isInstallationLimit(limitError()) {
		t.Fatalf("expected limit classification")
	}
	// Contract-coupled: both substrings are required.
	if isInstallationLimit(errors.New("installation corrupted")) {
		t.Fatalf("single substring must not classify as limit")
	}
	if isInstallationLimit(errors.New("user registered elsewhere")) {
		t.Fatalf("single substring must not classify as limit")
	}
	if got := extractInboxID(limitError().Error()); got != testInboxID {
		t.Fatalf("expected inbox %s, got %q", testInboxID, got)
	}
	if got := extractInboxID("no identifier here"); got != "" {
		t.Fatalf("expected empty inbox id, got %q", got)
	}
}
