// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
)

// newFixture builds a controller backed by a memory snapshot store and the
// given generate handler.
func newFixture(t *testing.T, handler http.HandlerFunc, stall time.Duration) (*Controller, *model.Store, *storage.Snapshots, func()) {
	t.Helper()
	server := httptest.NewServer(handler)

	store := model.NewStore()
	snaps := storage.NewSnapshots(storage.NewMemBackend(), storage.Limits{})
	ctrl := New(Config{
		Store:        store,
		Client:       ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: server.URL}),
		Snapshots:    snaps,
		StallTimeout: stall,
	})
	return ctrl, store, snaps, server.Close
}

func streamHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, f := range frames {
			fmt.Fprintln(w, f)
		}
	}
}

func testSettings() model.Settings {
	return model.Settings{SelectedModel: "llama3:8b", Temperature: 0.8}
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_CreatesAndNamesConversation(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(
		`{"response":"Hi"}`,
		`{"response":" there"}`,
		`{"done":true}`,
	), 0)
	defer done()

	if err := ctrl.Send(context.Background(), "Hello", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conv := store.Active()
	if conv == nil {
		t.Fatal("Send should create and activate a conversation")
	}
	if conv.Name != "Hello" {
		t.Errorf("Name = %q, want 'Hello'", conv.Name)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[0].Content != "Hello" {
		t.Errorf("First message = %s/%q", conv.Messages[0].Role, conv.Messages[0].Content)
	}
	last := conv.LastMessage()
	if last.Role != model.RoleAssistant || last.Content != "Hi there" {
		t.Errorf("Last message = %s/%q, want assistant/'Hi there'", last.Role, last.Content)
	}
}

func TestSend_AccumulatesWholeBufferPerDelta(t *testing.T) {
	ctrl, _, _, done := newFixture(t, streamHandler(
		`{"response":"a"}`,
		`{"response":"b"}`,
		`{"response":"c"}`,
		`{"done":true}`,
	), 0)
	defer done()

	var mu sync.Mutex
	var deltas []string
	ctrl.notify = func(u Update) {
		if u.Kind == UpdateDelta {
			mu.Lock()
			deltas = append(deltas, u.Content)
			mu.Unlock()
		}
	}

	if err := ctrl.Send(context.Background(), "go", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := []string{"a", "ab", "abc"}
	if len(deltas) != len(want) {
		t.Fatalf("Deltas = %v, want %v", deltas, want)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("Delta %d = %q, want %q", i, deltas[i], want[i])
		}
	}
}

func TestSend_RejectsEmptyInput(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(`{"done":true}`), 0)
	defer done()

	for _, input := range []string{"", "   ", "\n\t"} {
		if err := ctrl.Send(context.Background(), input, testSettings()); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Send(%q) = %v, want ErrEmptyInput", input, err)
		}
	}
	if store.Len() != 0 {
		t.Error("Rejected input should not create a conversation")
	}
}

func TestSend_RequiresModel(t *testing.T) {
	ctrl, _, _, done := newFixture(t, streamHandler(`{"done":true}`), 0)
	defer done()

	err := ctrl.Send(context.Background(), "hi", model.Settings{})
	if !errors.Is(err, ErrNoModel) {
		t.Errorf("Send = %v, want ErrNoModel", err)
	}
}

func TestSend_AppendsToActiveConversation(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(
		`{"response":"ok"}`,
		`{"done":true}`,
	), 0)
	defer done()

	existing := store.Create("Existing chat")
	store.SetActive(existing.ID)

	if err := ctrl.Send(context.Background(), "again", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Conversations = %d, want 1", store.Len())
	}
	if got := len(store.Get(existing.ID).Messages); got != 2 {
		t.Errorf("Messages = %d, want 2", got)
	}
}

func TestSend_PromptCarriesHistory(t *testing.T) {
	conv := model.NewConversation("ctx")
	conv.AddMessage(model.NewUserMessage("first question"))
	conv.AddMessage(model.NewAssistantMessage("first answer"))
	conv.AddMessage(model.NewErrorMessage("transient failure"))
	conv.AddMessage(model.NewUserMessage("second question"))

	prompt := buildPrompt(conv)
	for _, want := range []string{"User: first question\n", "Assistant: first answer\n", "User: second question\n"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "transient failure") {
		t.Error("Error messages should not reach the prompt")
	}
	if !strings.HasSuffix(prompt, "Assistant:") {
		t.Errorf("Prompt should end with the assistant cue: %q", prompt)
	}
}

// =============================================================================
// SAVE-THROUGH
// =============================================================================

func TestSend_SavesThrough(t *testing.T) {
	ctrl, store, snaps, done := newFixture(t, streamHandler(
		`{"response":"saved"}`,
		`{"done":true}`,
	), 0)
	defer done()

	if err := ctrl.Send(context.Background(), "persist me", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	loaded, _ := snaps.Load()
	if len(loaded) != 1 {
		t.Fatalf("Persisted conversations = %d, want 1", len(loaded))
	}
	if got := loaded[0].LastMessage().Content; got != "saved" {
		t.Errorf("Persisted content = %q, want 'saved'", got)
	}
	if got := snaps.LoadActiveID(); got != store.ActiveID() {
		t.Errorf("Persisted active id = %q, want %q", got, store.ActiveID())
	}
}

func TestSend_ReconcilesAfterTrim(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(
		`{"response":"ok"}`,
		`{"done":true}`,
	), 0)
	defer done()

	// Fill to the conversation ceiling, then send into a fresh conversation.
	for i := 0; i < 100; i++ {
		c := model.NewConversation(fmt.Sprintf("chat %d", i))
		c.UpdatedAt = time.Now().Add(-time.Duration(100-i) * time.Minute)
		store.Add(c)
	}
	store.ClearActive()

	if err := ctrl.Send(context.Background(), "the newest", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if store.Len() != 100 {
		t.Errorf("Conversations = %d, want 100 after trim reconciliation", store.Len())
	}
	names := make(map[string]bool)
	for _, c := range store.List() {
		names[c.Name] = true
	}
	if !names["the newest"] {
		t.Error("The new conversation should survive the trim")
	}
	if names["chat 0"] {
		t.Error("The least recently updated conversation should be evicted")
	}
}

// =============================================================================
// SUPERSEDING AND CANCELLATION
// =============================================================================

func TestSend_NewSendSupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		if first {
			fmt.Fprintln(w, `{"response":"stale"}`)
			flusher.Flush()
			<-release
			fmt.Fprintln(w, `{"response":" frame"}`)
			return
		}
		fmt.Fprintln(w, `{"response":"fresh"}`)
		fmt.Fprintln(w, `{"done":true}`)
	}
	ctrl, store, _, done := newFixture(t, handler, 0)
	defer done()
	defer close(release)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- ctrl.Send(context.Background(), "one", testSettings())
	}()

	// Wait for the first request's frame to land.
	deadline := time.After(5 * time.Second)
	for {
		conv := store.Active()
		if conv != nil && conv.LastMessage().Role == model.RoleAssistant {
			break
		}
		select {
		case <-deadline:
			t.Fatal("First stream never delivered a frame")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := ctrl.Send(context.Background(), "two", testSettings()); err != nil {
		t.Fatalf("Second Send failed: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Fatalf("Superseded Send should settle quietly, got %v", err)
	}

	// The superseded request's frames never reached the store after the
	// takeover: the trailing assistant message belongs to the second send.
	last := store.Active().LastMessage()
	if last.Content != "fresh" {
		t.Errorf("Last content = %q, want 'fresh'", last.Content)
	}
}

func TestCancel_KeepsPartialContent(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"response":"partial"}`)
		w.(http.Flusher).Flush()
		close(entered)
		<-release
	}
	ctrl, store, _, done := newFixture(t, handler, 0)
	defer done()
	defer close(release)

	var cancelled bool
	var mu sync.Mutex
	ctrl.notify = func(u Update) {
		if u.Kind == UpdateCancelled {
			mu.Lock()
			cancelled = true
			mu.Unlock()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Send(context.Background(), "stop me", testSettings())
	}()
	<-entered
	// Let the frame reach the store before aborting.
	deadline := time.After(5 * time.Second)
	for store.Active() == nil || store.Active().LastMessage().Role != model.RoleAssistant {
		select {
		case <-deadline:
			t.Fatal("Frame never reached the store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ctrl.Cancel()
	ctrl.Cancel() // idempotent

	if err := <-errCh; err != nil {
		t.Fatalf("Cancelled Send should return nil, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !cancelled {
		t.Error("Cancel should emit an UpdateCancelled notification")
	}

	// The partial assistant text survives, followed by a single trailer
	// recording that the turn was stopped.
	msgs := store.Active().Messages
	if len(msgs) != 3 {
		t.Fatalf("Messages = %d, want user + partial assistant + stop notice", len(msgs))
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "partial" {
		t.Errorf("Partial message = %s/%q, want assistant/'partial'", msgs[1].Role, msgs[1].Content)
	}
	if msgs[2].Role != model.RoleError || !strings.Contains(msgs[2].Content, "stopped") {
		t.Errorf("Trailer = %s/%q, want an error-role stop notice", msgs[2].Role, msgs[2].Content)
	}
	if ctrl.IsBusy() {
		t.Error("Controller should be idle after a cancelled send")
	}
}

func TestSend_ConcurrentReadsDuringStream(t *testing.T) {
	// The UI goroutine reads the store while the send goroutine streams
	// frames into it; both sides must only ever see consistent copies.
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for i := 0; i < 50; i++ {
			fmt.Fprintln(w, `{"response":"x"}`)
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
		fmt.Fprintln(w, `{"done":true}`)
	}
	ctrl, store, _, done := newFixture(t, handler, 0)
	defer done()

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if conv := store.Active(); conv != nil {
				if last := conv.LastMessage(); last != nil {
					_ = len(last.Content)
				}
				_ = conv.Preview()
			}
			for _, c := range store.List() {
				_ = c.Name
			}
		}
	}()

	if err := ctrl.Send(context.Background(), "hammer", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	close(stop)
	<-readerDone

	if got := store.Active().LastMessage().Content; got != strings.Repeat("x", 50) {
		t.Errorf("Content = %q, want the full accumulated buffer", got)
	}
}

func TestSend_StallTimeout(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"response":"slow"}`)
		w.(http.Flusher).Flush()
		close(entered)
		<-release // never send another byte
	}
	ctrl, store, _, done := newFixture(t, handler, 150*time.Millisecond)
	defer done()
	defer close(release)

	err := ctrl.Send(context.Background(), "hang", testSettings())
	<-entered
	if !ollama.IsTimeout(err) {
		t.Fatalf("Send = %v, want a timeout error", err)
	}

	last := store.Active().LastMessage()
	if last.Role != model.RoleError {
		t.Fatalf("Last message role = %s, want error", last.Role)
	}
	if !strings.Contains(last.Content, "stopped responding") {
		t.Errorf("Error message = %q, want a timeout description", last.Content)
	}
	if ctrl.IsBusy() {
		t.Error("Controller should be idle after a timeout")
	}
}

func TestSend_TimerRearmsPerFrame(t *testing.T) {
	// Five frames spaced at 100ms against a 250ms stall timeout: a one-shot
	// timer would fire mid-stream, a sliding one never does.
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			fmt.Fprintln(w, `{"response":"x"}`)
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprintln(w, `{"done":true}`)
	}
	ctrl, store, _, done := newFixture(t, handler, 250*time.Millisecond)
	defer done()

	if err := ctrl.Send(context.Background(), "steady", testSettings()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := store.Active().LastMessage().Content; got != "xxxxx" {
		t.Errorf("Content = %q, want 'xxxxx'", got)
	}
}

// =============================================================================
// ERROR PATHS
// =============================================================================

func TestSend_ServerUnreachable(t *testing.T) {
	store := model.NewStore()
	ctrl := New(Config{
		Store:     store,
		Client:    ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: "http://127.0.0.1:1"}),
		Snapshots: storage.NewSnapshots(storage.NewMemBackend(), storage.Limits{}),
	})

	err := ctrl.Send(context.Background(), "anyone there", testSettings())
	if !ollama.IsNotRunning(err) {
		t.Fatalf("Send = %v, want a not-running error", err)
	}

	last := store.Active().LastMessage()
	if last.Role != model.RoleError {
		t.Fatalf("Last message role = %s, want error", last.Role)
	}
	if !strings.Contains(last.Content, "ollama serve") {
		t.Errorf("Error message = %q, want a remediation hint", last.Content)
	}
}

func TestSend_ModelErrorGetsPullHint(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'llama3:8b' not found"}`)
	}
	ctrl, store, _, done := newFixture(t, handler, 0)
	defer done()

	err := ctrl.Send(context.Background(), "hi", testSettings())
	if !ollama.IsModelError(err) {
		t.Fatalf("Send = %v, want a model error", err)
	}
	last := store.Active().LastMessage()
	if !strings.Contains(last.Content, "ollama pull llama3:8b") {
		t.Errorf("Error message = %q, want a pull hint", last.Content)
	}
}

func TestSend_HTTPStatusHints(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusNotFound, "404"},
		{http.StatusInternalServerError, "server logs"},
		{http.StatusTeapot, "returned an error"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "backend failure")
			}
			ctrl, store, _, done := newFixture(t, handler, 0)
			defer done()

			if err := ctrl.Send(context.Background(), "hi", testSettings()); err == nil {
				t.Fatal("Send should fail")
			}
			last := store.Active().LastMessage()
			if last.Role != model.RoleError || !strings.Contains(last.Content, tt.want) {
				t.Errorf("Error message = %q, want it to mention %q", last.Content, tt.want)
			}
		})
	}
}

func TestSend_ErrorFrameTerminatesStream(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(
		`{"response":"part"}`,
		`{"error":"model exploded"}`,
	), 0)
	defer done()

	err := ctrl.Send(context.Background(), "boom", testSettings())
	if !ollama.IsModelError(err) {
		t.Fatalf("Send = %v, want a model error", err)
	}
	last := store.Active().LastMessage()
	if last.Role != model.RoleError {
		t.Errorf("Last message role = %s, want error", last.Role)
	}
}

// =============================================================================
// SUMMARIZE
// =============================================================================

func TestSummarize(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"A short chat about the weather.","done":true}`)
	}
	ctrl, store, snaps, done := newFixture(t, handler, 0)
	defer done()

	conv := store.Create("Weather")
	store.AppendMessage(conv.ID, model.NewUserMessage("Will it rain?"))
	store.AppendMessage(conv.ID, model.NewAssistantMessage("Probably."))

	summary, err := ctrl.Summarize(context.Background(), conv.ID, model.SummaryBrief, "", testSettings())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.Content != "A short chat about the weather." {
		t.Errorf("Content = %q", summary.Content)
	}
	if summary.Style != model.SummaryBrief {
		t.Errorf("Style = %q, want brief", summary.Style)
	}
	if got := len(store.Get(conv.ID).SummaryHistory); got != 1 {
		t.Errorf("SummaryHistory = %d entries, want 1", got)
	}

	// Summaries are part of the persisted snapshot.
	loaded, _ := snaps.Load()
	if len(loaded) != 1 || len(loaded[0].SummaryHistory) != 1 {
		t.Error("Summary should be persisted with the conversation")
	}
}

func TestSummarize_HistoryCap(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"s","done":true}`)
	}
	ctrl, store, _, done := newFixture(t, handler, 0)
	defer done()

	conv := store.Create("Busy")
	store.AppendMessage(conv.ID, model.NewUserMessage("hello"))

	for i := 0; i < 7; i++ {
		if _, err := ctrl.Summarize(context.Background(), conv.ID, model.SummaryBrief, "", testSettings()); err != nil {
			t.Fatalf("Summarize %d failed: %v", i, err)
		}
	}
	if got := len(store.Get(conv.ID).SummaryHistory); got != model.MaxSummaries {
		t.Errorf("SummaryHistory = %d entries, want %d", got, model.MaxSummaries)
	}
}

func TestSummarize_Validation(t *testing.T) {
	ctrl, store, _, done := newFixture(t, streamHandler(), 0)
	defer done()

	conv := store.Create("Empty")

	if _, err := ctrl.Summarize(context.Background(), conv.ID, model.SummaryBrief, "", testSettings()); !errors.Is(err, ErrEmptyConversation) {
		t.Errorf("Empty conversation: err = %v, want ErrEmptyConversation", err)
	}

	store.AppendMessage(conv.ID, model.NewUserMessage("hi"))
	if _, err := ctrl.Summarize(context.Background(), conv.ID, "haiku", "", testSettings()); err == nil {
		t.Error("Unknown style should fail")
	}
	if _, err := ctrl.Summarize(context.Background(), conv.ID, model.SummaryCustom, "  ", testSettings()); err == nil {
		t.Error("Custom style without a prompt should fail")
	}
	if _, err := ctrl.Summarize(context.Background(), "missing-id", model.SummaryBrief, "", testSettings()); err == nil {
		t.Error("Unknown conversation should fail")
	}
}
