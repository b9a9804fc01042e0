// Package triage is the authorization and routing engine for inbound chat
// messages: it decides whether a conversation's members may talk to the
// bot at all, then routes each message to help, search, or selection
// handling based on the sender's workflow state.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/reelgate/reelgate/internal/catalog"
	"github.com/reelgate/reelgate/internal/messaging"
	"github.com/reelgate/reelgate/internal/metrics"
	"github.com/reelgate/reelgate/internal/tracker"
	"github.com/reelgate/reelgate/internal/workflow"
)

// Fixed user-facing replies.
const (
	rejectionReply = "Sorry, I'm not allowed to talk to strangers."
	helpReply      = "Here's what I can do:\n" +
		"- \"movie <title>\" searches for a movie\n" +
		"- \"tv <title>\" searches for a show\n" +
		"- reply with a number to request one of the results\n" +
		"- \"help\" shows this message"
	fallbackReply         = "I don't know what to do with that. Send \"help\" to see what I can do."
	adminContactReply     = "I can't map your identity to a catalog account. Please contact the bot administrator."
	alreadyRequestedReply = "That one has already been requested. You'll hear about it when it's ready."
	noPermissionReply     = "You don't have permission to request that."
	genericFailureReply   = "Something went wrong on my end. Please try again in a bit."
)

// CatalogService is the slice of the catalog client the engine needs.
type CatalogService interface {
	SearchMovies(ctx context.Context, query string) ([]catalog.Result, error)
	SearchTV(ctx context.Context, query string) ([]catalog.Result, error)
	SubmitRequest(ctx context.Context, requesterIdentifier string, item catalog.Result) error
}

// Engine authorizes and routes inbound messages. One engine serves the
// whole inbound stream; per-identifier dispatches within a message run
// concurrently.
type Engine struct {
	logger    *slog.Logger
	client    messaging.Client
	catalog   CatalogService
	states    *workflow.Store
	requests  *tracker.Tracker
	allowlist map[string]struct{}
	metrics   *metrics.Metrics
}

// NewEngine creates a triage engine. Allowlist entries are normalized to
// lower case; membership tests are case-insensitive.
func NewEngine(log *slog.Logger, client messaging.Client, cat CatalogService, states *workflow.Store, requests *tracker.Tracker, allowlist []string, m *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]struct{}, len(allowlist))
	for _, id := range allowlist {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &Engine{
		logger:    log.With(slog.String("component", "triage")),
		client:    client,
		catalog:   cat,
		states:    states,
		requests:  requests,
		allowlist: allowed,
		metrics:   m,
	}
}

// HandleMessage processes one inbound message end to end. Errors inside a
// single dispatch become a best-effort apology to the user; the method
// itself returns only when every dispatch has finished and never
// propagates per-message failures to the stream consumer.
func (e *Engine) HandleMessage(ctx context.Context, msg messaging.Message) {
	if msg.SenderInboxID == e.client.InboxID() {
		return
	}
	if msg.ContentType != messaging.ContentTypeText {
		return
	}
	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}

	conv, err := e.client.ConversationByID(ctx, msg.ConversationID)
	if err != nil {
		e.logger.Warn("resolving conversation failed",
			slog.String("conversation_id", msg.ConversationID),
			slog.String("error", err.Error()))
		e.count("skipped")
		return
	}
	if conv.Kind != messaging.ConversationDirect {
		e.count("skipped")
		return
	}

	members, err := e.client.Members(ctx, conv.ID)
	if err != nil {
		e.logger.Warn("listing members failed",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()))
		e.count("skipped")
		return
	}

	identifiers, authErr := e.authorize(members)
	switch {
	case errors.Is(authErr, errNoHumanMembers):
		// Should not occur in a direct conversation. Not worth a reply,
		// since there is nobody to read it.
		e.count("skipped")
		return
	case errors.Is(authErr, errUnresolvableMember):
		// Fail closed: an identity the resolver cannot evaluate must not
		// slip through unreviewed.
		e.count("errored")
		e.reply(ctx, conv.ID, adminContactReply)
		return
	case authErr != nil:
		e.count("rejected")
		e.reply(ctx, conv.ID, rejectionReply)
		return
	}
	e.count("allowed")

	var wg sync.WaitGroup
	for _, identifier := range identifiers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.dispatch(ctx, conv.ID, id, content); err != nil {
				e.logger.Error("triage dispatch failed",
					slog.String("identifier", id),
					slog.String("error", err.Error()))
				e.reply(ctx, conv.ID, genericFailureReply)
			}
		}(identifier)
	}
	wg.Wait()
}

var (
	errUnresolvableMember = errors.New("member has no resolvable identifiers")
	errMemberNotAllowed   = errors.New("member not in allowlist")
	errNoHumanMembers     = errors.New("no members besides the bot")
)

// authorize checks every non-bot member against the allowlist and returns
// the deduplicated lower-cased identifiers observed across all of them.
// The conversation is authorized only if every member is allowed.
func (e *Engine) authorize(members []messaging.Participant) ([]string, error) {
	seen := map[string]struct{}{}
	var identifiers []string
	humans := 0
	for _, member := range members {
		if member.InboxID == e.client.InboxID() {
			continue
		}
		humans++
		ids := messaging.ResolveIdentifiers(member)
		if len(ids) == 0 {
			return nil, errUnresolvableMember
		}
		allowed := false
		for _, id := range ids {
			lower := strings.ToLower(id)
			if _, ok := e.allowlist[lower]; ok {
				allowed = true
			}
			if _, dup := seen[lower]; !dup {
				seen[lower] = struct{}{}
				identifiers = append(identifiers, lower)
			}
		}
		if !allowed {
			return nil, errMemberNotAllowed
		}
	}
	if humans == 0 {
		return nil, errNoHumanMembers
	}
	return identifiers, nil
}

func (e *Engine) dispatch(ctx context.Context, conversationID, identifier, content string) error {
	lowered := strings.ToLower(content)
	switch {
	case lowered == "help":
		e.reply(ctx, conversationID, helpReply)
		return nil
	case strings.HasPrefix(lowered, "movie "):
		return e.search(ctx, conversationID, identifier, catalog.KindMovie, strings.TrimSpace(content[len("movie "):]))
	case strings.HasPrefix(lowered, "tv "):
		return e.search(ctx, conversationID, identifier, catalog.KindTV, strings.TrimSpace(content[len("tv "):]))
	}

	state, results := e.states.Get(identifier)
	switch state {
	case workflow.StateAwaitingMovieSelection, workflow.StateAwaitingTvSelection:
		return e.submitSelection(ctx, conversationID, identifier, lowered, results)
	default:
		e.reply(ctx, conversationID, fallbackReply)
		return nil
	}
}

func (e *Engine) search(ctx context.Context, conversationID, identifier string, kind catalog.MediaKind, query string) error {
	if query == "" {
		e.reply(ctx, conversationID, fallbackReply)
		return nil
	}

	var (
		results []catalog.Result
		err     error
	)
	if kind == catalog.KindMovie {
		results, err = e.catalog.SearchMovies(ctx, query)
	} else {
		results, err = e.catalog.SearchTV(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("search %s: %w", kind, err)
	}
	if len(results) == 0 {
		e.reply(ctx, conversationID, fmt.Sprintf("No results for %q. Try a different title.", query))
		return nil
	}

	state := workflow.StateAwaitingMovieSelection
	if kind == catalog.KindTV {
		state = workflow.StateAwaitingTvSelection
	}
	e.states.Set(identifier, state, results)

	// Re-read so the rendered list matches the stored, truncated context.
	_, stored := e.states.Get(identifier)
	lines := make([]string, 0, len(stored)+1)
	for i, result := range stored {
		lines = append(lines, result.Display(i+1))
	}
	lines = append(lines, fmt.Sprintf("Reply with a number between 1 and %d to request one.", len(stored)))
	e.reply(ctx, conversationID, strings.Join(lines, "\n"))
	return nil
}

func (e *Engine) submitSelection(ctx context.Context, conversationID, identifier, content string, results []catalog.Result) error {
	index, ok := parseSelection(content)
	if !ok || index < 1 || index > len(results) {
		e.reply(ctx, conversationID, fmt.Sprintf("Please reply with a number between 1 and %d, or start a new search.", len(results)))
		return nil
	}
	item := results[index-1]

	err := e.catalog.SubmitRequest(ctx, identifier, item)
	switch {
	case errors.Is(err, catalog.ErrAlreadyRequested):
		// The selection is consumed either way. Any earlier tracked entry
		// stays so the original requester still gets the completion notice.
		e.states.Clear(identifier)
		e.reply(ctx, conversationID, alreadyRequestedReply)
		return nil
	case errors.Is(err, catalog.ErrNoPermission):
		e.reply(ctx, conversationID, noPermissionReply)
		return nil
	case errors.Is(err, catalog.ErrUnmappedIdentifier):
		e.reply(ctx, conversationID, adminContactReply)
		return nil
	case err != nil:
		return fmt.Errorf("submit request for item %d: %w", item.ID, err)
	}

	// Track before acknowledging so a webhook arriving immediately after
	// the backend accepts the request still finds its requester.
	e.requests.Track(item.ID, item.Kind, identifier, item.Title)
	e.states.Clear(identifier)
	e.reply(ctx, conversationID, fmt.Sprintf("Requested %s! You'll get a message here when it's ready.", item.Title))
	return nil
}

// parseSelection accepts only pure digit strings; "2x", "1.5" and similar
// fall through to the bounds error instead of being partially parsed.
func parseSelection(content string) (int, bool) {
	if content == "" {
		return 0, false
	}
	for _, r := range content {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(content)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Engine) reply(ctx context.Context, conversationID, text string) {
	if err := e.client.Send(ctx, conversationID, text); err != nil {
		e.logger.Error("sending reply failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.TriageOutcomes.WithLabelValues(outcome).Inc()
	}
}
