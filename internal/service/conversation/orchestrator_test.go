package conversation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/intake-sim/backend/internal/model/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/model/persona"
	"github.com/zhouzirui/intake-sim/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
)

// scriptedCompleter replays deltas and optionally fails after them.
type scriptedCompleter struct {
	mu       sync.Mutex
	deltas   []string
	failWith error
	openErr  error
	requests []ai.Request
	gate     chan struct{}
}

func (c *scriptedCompleter) Stream(_ context.Context, req ai.Request) (*schema.StreamReader[*schema.Message], error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.openErr != nil {
		return nil, c.openErr
	}

	sr, sw := schema.Pipe[*schema.Message](len(c.deltas) + 1)
	go func() {
		defer sw.Close()
		if c.gate != nil {
			<-c.gate
		}
		for _, d := range c.deltas {
			sw.Send(schema.AssistantMessage(d, nil), nil)
		}
		if c.failWith != nil {
			sw.Send(nil, c.failWith)
		}
	}()
	return sr, nil
}

func (c *scriptedCompleter) lastRequest() ai.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	failOn int
}

func (r *recorder) emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn > 0 && len(r.events)+1 >= r.failOn {
		return errors.New("client disconnected")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) deltas() string {
	var sb strings.Builder
	for _, ev := range r.events {
		sb.WriteString(ev.Delta)
	}
	return sb.String()
}

func (r *recorder) last() Event { return r.events[len(r.events)-1] }

func setup(t *testing.T, completer Completer, mutate func(*Config)) (*Orchestrator, *chatservice.MemoryStore, string) {
	t.Helper()
	store := chatservice.NewService(chatservice.Options{Generator: persona.NewGenerator(rand.NewSource(5))})
	id, err := store.GetOrCreate(context.Background(), "")
	require.NoError(t, err)

	cfg := Config{Store: store, Completer: completer, MaxTokens: 1000, InjectReminder: true, CheckConsistency: true}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o, store, id
}

func TestExchangeCommitsTurnPair(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"Hi", " there"}}
	o, store, id := setup(t, completer, nil)
	rec := &recorder{}

	require.NoError(t, o.Exchange(context.Background(), id, "Hello", rec.emit))

	assert.Equal(t, []Event{{Delta: "Hi"}, {Delta: " there"}, {Done: true}}, rec.events)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("Hi there")}, session.Turns)
}

func TestExchangeInjectsReminderIntoOutboundOnly(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"ok"}}
	o, store, id := setup(t, completer, nil)

	require.NoError(t, o.Exchange(context.Background(), id, "Hello", (&recorder{}).emit))

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)

	req := completer.lastRequest()
	assert.Equal(t, session.Instruction, req.System)
	assert.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Turns, 1)
	want := ai.AugmentUserMessage(ai.CompileReminder(session.Persona), "Hello")
	assert.Equal(t, chat.UserTurn(want), req.Turns[0])
	assert.Equal(t, "Hello", session.Turns[0].Content)
}

func TestExchangeWithoutReminder(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"ok"}}
	o, _, id := setup(t, completer, func(c *Config) { c.InjectReminder = false })

	require.NoError(t, o.Exchange(context.Background(), id, "Hello", (&recorder{}).emit))
	require.NoError(t, o.Exchange(context.Background(), id, "Again", (&recorder{}).emit))

	req := completer.lastRequest()
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("ok"), chat.UserTurn("Again")}, req.Turns)
}

func TestComposeSkipsCarrierAndLeadingAssistantTurns(t *testing.T) {
	o := &Orchestrator{maxTokens: 10}
	req := o.compose(chat.Session{
		Instruction: "sys",
		Turns: []chat.Turn{
			chat.AssistantTurn("orphaned"),
			{Role: chat.RoleSystem, Content: "summary"},
			chat.UserTurn("a"),
			chat.AssistantTurn("b"),
		},
	}, "c")

	assert.Equal(t, []chat.Turn{chat.UserTurn("a"), chat.AssistantTurn("b"), chat.UserTurn("c")}, req.Turns)
}

func TestExchangeSubstitutesCorrection(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"My name is Zed", " and I'm 999 years old."}}
	o, store, id := setup(t, completer, nil)
	rec := &recorder{}

	require.NoError(t, o.Exchange(context.Background(), id, "Who are you?", rec.emit))

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	correction := ai.GenerateCorrection(session.Persona)

	require.Len(t, rec.events, 4)
	assert.Equal(t, Event{Delta: correction}, rec.events[2])
	assert.Equal(t, Event{Done: true}, rec.events[3])
	assert.Equal(t, chat.AssistantTurn(correction), session.Turns[1])
}

func TestExchangeKeepsInconsistentReplyWhenCheckDisabled(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"I'm 999 years old."}}
	o, store, id := setup(t, completer, func(c *Config) { c.CheckConsistency = false })

	require.NoError(t, o.Exchange(context.Background(), id, "Age?", (&recorder{}).emit))

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "I'm 999 years old.", session.Turns[1].Content)
}

func TestExchangeFailureMidStreamLeavesSessionUntouched(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"Hi"}, failWith: errors.New("overloaded")}
	o, store, id := setup(t, completer, nil)
	rec := &recorder{}

	err := o.Exchange(context.Background(), id, "Hello", rec.emit)

	var completionErr *CompletionError
	require.ErrorAs(t, err, &completionErr)
	require.Len(t, rec.events, 2)
	assert.Equal(t, Event{Delta: "Hi"}, rec.events[0])
	assert.NotEmpty(t, rec.last().Error)
	assert.False(t, rec.last().Done)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, session.Turns)
}

func TestExchangeFailureOnOpenKeepsPriorTurns(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"fine"}}
	o, store, id := setup(t, completer, nil)
	require.NoError(t, o.Exchange(context.Background(), id, "Hello", (&recorder{}).emit))

	completer.openErr = errors.New("unauthorized")
	rec := &recorder{}
	err := o.Exchange(context.Background(), id, "Still there?", rec.emit)
	require.Error(t, err)
	require.Len(t, rec.events, 1)
	assert.Contains(t, rec.events[0].Error, "unauthorized")

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("fine")}, session.Turns)
}

func TestExchangeClientDisconnectIsNotCommitted(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"one", "two", "three"}}
	o, store, id := setup(t, completer, nil)
	rec := &recorder{failOn: 2}

	err := o.Exchange(context.Background(), id, "Hello", rec.emit)
	require.Error(t, err)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, session.Turns)
}

func TestExchangeCancelledContextIsNotCommitted(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"one", "two"}}
	o, store, id := setup(t, completer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	sink := func(ev Event) error {
		cancel()
		return rec.emit(ev)
	}

	err := o.Exchange(ctx, id, "Hello", sink)
	require.ErrorIs(t, err, context.Canceled)

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, session.Turns)
}

func TestExchangeUnknownSession(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"Hi"}}
	o, store, _ := setup(t, completer, nil)
	rec := &recorder{}

	err := o.Exchange(context.Background(), "nope", "Hello", rec.emit)
	require.ErrorIs(t, err, chatservice.ErrSessionNotFound)
	require.Len(t, rec.events, 1)
	assert.NotEmpty(t, rec.events[0].Error)
	assert.Equal(t, 1, store.Len())
	assert.Empty(t, completer.requests)
}

func TestExchangeRejectsBlankMessage(t *testing.T) {
	completer := &scriptedCompleter{}
	o, _, id := setup(t, completer, nil)
	rec := &recorder{}

	err := o.Exchange(context.Background(), id, "   ", rec.emit)
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, "Message is required.", rec.last().Error)
}

func TestExchangesOnOneSessionAreSerialized(t *testing.T) {
	gate := make(chan struct{})
	completer := &scriptedCompleter{deltas: []string{"reply"}, gate: gate}
	o, store, id := setup(t, completer, func(c *Config) { c.InjectReminder = false })

	var wg sync.WaitGroup
	for _, msg := range []string{"first", "second"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			assert.NoError(t, o.Exchange(context.Background(), id, msg, (&recorder{}).emit))
		}(msg)
	}

	time.Sleep(50 * time.Millisecond)
	completer.mu.Lock()
	inFlight := len(completer.requests)
	completer.mu.Unlock()
	assert.Equal(t, 1, inFlight, "second exchange must wait for the first to commit")

	close(gate)
	wg.Wait()

	session, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, session.Turns, 4)
	assert.Equal(t, chat.RoleUser, session.Turns[0].Role)
	assert.Equal(t, chat.RoleAssistant, session.Turns[1].Role)
	assert.Equal(t, chat.RoleUser, session.Turns[2].Role)
	assert.Equal(t, chat.RoleAssistant, session.Turns[3].Role)

	second := completer.lastRequest()
	assert.Len(t, second.Turns, 3, "second request sees the first exchange")
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Config{Completer: &scriptedCompleter{}})
	require.Error(t, err)

	store := chatservice.NewService(chatservice.Options{})
	_, err = New(Config{Store: store})
	require.Error(t, err)

	o, err := New(Config{Store: store, Completer: &scriptedCompleter{}})
	require.NoError(t, err)
	assert.Equal(t, 1000, o.maxTokens)
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, describe(&CompletionError{Err: errors.New("rate limited")}), "rate limited")
	assert.Equal(t, "Request cancelled.", describe(context.Canceled))
	assert.Contains(t, describe(chatservice.ErrSessionNotFound), "new session")
}
