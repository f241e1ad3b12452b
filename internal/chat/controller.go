// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the streaming request lifecycle: it turns user input into
// a generate request, drains the decoded frames into the active conversation,
// and writes the store through to persistence after every completed turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
)

// DefaultStallTimeout aborts a stream that delivers no frame for this long.
// The timer rearms on every received frame, so a slow but live stream is
// never cut off.
const DefaultStallTimeout = 30 * time.Second

// ErrEmptyInput is returned by Send when the trimmed input is empty.
var ErrEmptyInput = errors.New("empty input")

// ErrNoModel is returned by Send when no model is selected and the client
// carries no default.
var ErrNoModel = errors.New("no model selected")

// =============================================================================
// UPDATE NOTIFICATIONS
// =============================================================================

// UpdateKind tells a subscriber what changed.
type UpdateKind int

const (
	// UpdateStarted fires once per Send, after the user message is in the store.
	UpdateStarted UpdateKind = iota
	// UpdateDelta fires per received frame; Content holds the whole
	// accumulated assistant text, not the increment.
	UpdateDelta
	// UpdateDone fires when the stream completed normally.
	UpdateDone
	// UpdateCancelled fires when the user aborted the stream. Partial
	// assistant text is kept and a short error-role note marks the abort
	// in the transcript.
	UpdateCancelled
	// UpdateFailed fires when the turn ended in an error. An error-role
	// message describing the failure is already in the conversation.
	UpdateFailed
)

// Update describes one controller-side change to the active conversation.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Content        string
	Err            error
}

// Notifier receives updates as the stream progresses. Called from the
// goroutine running Send.
type Notifier func(Update)

// =============================================================================
// CONTROLLER
// =============================================================================

// Config wires a Controller's collaborators.
type Config struct {
	Store     *model.Store
	Client    *ollama.Client
	Snapshots *storage.Snapshots
	Notify    Notifier
	// StallTimeout overrides DefaultStallTimeout when positive.
	StallTimeout time.Duration
}

// Controller drives at most one inference request at a time. A new Send
// supersedes the previous request: the old one is cancelled and any frames it
// still delivers are discarded.
type Controller struct {
	store        *model.Store
	client       *ollama.Client
	snaps        *storage.Snapshots
	notify       Notifier
	stallTimeout time.Duration

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	busy       bool
}

// New creates a controller. Store, Client, and Snapshots are required.
func New(cfg Config) *Controller {
	timeout := cfg.StallTimeout
	if timeout <= 0 {
		timeout = DefaultStallTimeout
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(Update) {}
	}
	return &Controller{
		store:        cfg.Store,
		client:       cfg.Client,
		snaps:        cfg.Snapshots,
		notify:       notify,
		stallTimeout: timeout,
	}
}

// IsBusy reports whether a request is in flight.
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Cancel aborts the in-flight request, if any. Safe to call repeatedly.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one full user turn: appends the user message (creating and
// naming a conversation when none is active), streams the response into the
// trailing assistant message, and saves the store once the turn settles.
//
// Stream failures do not leave the conversation silent: each failure kind
// appends one error-role message describing it, and the same error is
// returned. A user-initiated cancel keeps the partial assistant text and
// returns nil.
func (c *Controller) Send(ctx context.Context, text string, settings model.Settings) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	modelName := settings.SelectedModel
	if modelName == "" {
		modelName = c.client.DefaultModel()
	}
	if modelName == "" {
		return ErrNoModel
	}

	reqCtx, cancel := context.WithCancel(ctx)
	gen := c.beginRequest(cancel)
	defer c.endRequest(gen)

	conv := c.store.AppendToActive(model.NewUserMessage(text))
	c.notify(Update{Kind: UpdateStarted, ConversationID: conv.ID})

	// timedOut distinguishes the stall abort from a user cancel: both
	// surface as a cancelled context inside the client.
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.stallTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()

	var acc strings.Builder
	req := ollama.GenerateRequest{
		Model:  modelName,
		Prompt: buildPrompt(conv),
		Options: &ollama.Options{
			Temperature: settings.Temperature,
		},
	}
	err := c.client.Generate(reqCtx, req, func(frame ollama.Frame) {
		timer.Reset(c.stallTimeout)
		if frame.Response == "" {
			return
		}
		acc.WriteString(frame.Response)
		// A superseded request's late frames must not reach the store.
		if !c.isCurrent(gen) {
			return
		}
		c.store.SetLastAssistantContent(conv.ID, acc.String())
		c.notify(Update{Kind: UpdateDelta, ConversationID: conv.ID, Content: acc.String()})
	})
	timer.Stop()

	if !c.isCurrent(gen) {
		return nil
	}
	return c.settleTurn(conv.ID, acc.String(), err, timedOut.Load(), modelName)
}

// settleTurn classifies the stream outcome, records it in the conversation,
// and saves the store. Every abort path, the user-initiated one included,
// leaves one error-role message behind so the transcript records how the
// turn ended; a cancel still returns nil to the caller.
func (c *Controller) settleTurn(convID, content string, err error, timedOut bool, modelName string) error {
	defer c.SaveNow()

	switch {
	case err == nil:
		c.notify(Update{Kind: UpdateDone, ConversationID: convID, Content: content})
		return nil

	case timedOut:
		terr := &ollama.ClientError{
			Type:    ollama.ErrTypeTimeout,
			Message: fmt.Sprintf("no data received for %s", c.stallTimeout),
		}
		c.store.AppendMessage(convID, model.NewErrorMessage(fmt.Sprintf(
			"The server stopped responding (no data for %s). The request was aborted.", c.stallTimeout)))
		c.notify(Update{Kind: UpdateFailed, ConversationID: convID, Err: terr})
		return terr

	case ollama.IsCancelled(err):
		c.store.AppendMessage(convID, model.NewErrorMessage("Generation stopped."))
		c.notify(Update{Kind: UpdateCancelled, ConversationID: convID, Content: content})
		return nil

	default:
		c.store.AppendMessage(convID, model.NewErrorMessage(describeError(err, c.client.BaseURL(), modelName)))
		c.notify(Update{Kind: UpdateFailed, ConversationID: convID, Err: err})
		return err
	}
}

// describeError renders a stream failure as user-facing text with the
// remediation hint for its kind.
func describeError(err error, baseURL, modelName string) string {
	var cerr *ollama.ClientError
	if !errors.As(err, &cerr) {
		return fmt.Sprintf("Request failed: %v", err)
	}
	switch cerr.Type {
	case ollama.ErrTypeNotRunning:
		return fmt.Sprintf("Cannot reach the Ollama server at %s. Make sure `ollama serve` is running.", baseURL)
	case ollama.ErrTypeModelError:
		return fmt.Sprintf("Model error: %s\n\nIf the model is not installed, run: ollama pull %s", cerr.Message, modelName)
	case ollama.ErrTypeHTTP:
		switch cerr.StatusCode {
		case http.StatusNotFound:
			return "The server returned 404. Check that the Ollama server is running and up to date."
		case http.StatusInternalServerError:
			return "The server returned 500. Check the server logs for details."
		default:
			return fmt.Sprintf("The server returned an error: %s", cerr.Message)
		}
	default:
		return fmt.Sprintf("Request failed: %s", cerr.Message)
	}
}

// =============================================================================
// PERSISTENCE WRITE-THROUGH
// =============================================================================

// SaveNow persists the current store state, reconciling in-memory
// conversations with what was actually kept when trimming or a degraded
// save occurred.
func (c *Controller) SaveNow() storage.SaveInfo {
	kept, info, err := c.snaps.Save(c.store.List())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save conversations: %v\n", err)
		return info
	}
	if info.Trimmed || info.Degraded {
		c.store.ReplaceAll(kept)
	}
	if err := c.snaps.SaveActiveID(c.store.ActiveID()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save active conversation: %v\n", err)
	}
	return info
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// beginRequest supersedes any in-flight request and registers the new one.
func (c *Controller) beginRequest(cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	c.cancel = cancel
	c.busy = true
	return c.generation
}

// endRequest clears the in-flight state unless a newer request already took
// over.
func (c *Controller) endRequest(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.cancel = nil
	c.busy = false
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// =============================================================================
// PROMPT CONSTRUCTION
// =============================================================================

// buildPrompt renders the conversation transcript for /api/generate. Error
// messages are ours, not the model's, and are left out.
func buildPrompt(conv *model.Conversation) string {
	return transcript(conv) + "Assistant:"
}
