// Package conversation runs one chat exchange against a session: it composes
// the outbound prompt, forwards streamed deltas to the caller, reconciles the
// reply with the persona and commits the turn pair.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhouzirui/intake-sim/backend/internal/model/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
)

const instrumentationName = "github.com/zhouzirui/intake-sim/backend/internal/service/conversation"

// ErrEmptyMessage is returned for blank interviewer messages.
var ErrEmptyMessage = errors.New("message is required")

// CompletionError wraps any failure reported by the completion service.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return "completion service: " + e.Err.Error() }

func (e *CompletionError) Unwrap() error { return e.Err }

// Completer is the streaming text-completion capability.
type Completer interface {
	Stream(ctx context.Context, req ai.Request) (*schema.StreamReader[*schema.Message], error)
}

// Event is one item of the stream sent back to the caller. Exactly one of
// the fields is set.
type Event struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// Sink delivers events to the caller. An error means the caller is gone.
type Sink func(Event) error

// Config wires an Orchestrator.
type Config struct {
	Store     chatservice.Store
	Completer Completer
	// MaxTokens is the completion budget per exchange.
	MaxTokens int
	// InjectReminder prefixes the outbound user message with the persona
	// reminder. The stored turn keeps the original text.
	InjectReminder bool
	// CheckConsistency replaces replies that contradict the persona's name or
	// age with a corrective reply.
	CheckConsistency bool
	Logger           *slog.Logger
}

// Orchestrator runs chat exchanges. It is safe for concurrent use; exchanges
// on the same session are serialized through the store.
type Orchestrator struct {
	store            chatservice.Store
	completer        Completer
	maxTokens        int
	injectReminder   bool
	checkConsistency bool
	logger           *slog.Logger

	tracer      trace.Tracer
	exchanges   metric.Int64Counter
	failures    metric.Int64Counter
	corrections metric.Int64Counter
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	meter := otel.Meter(instrumentationName)
	exchanges, err := meter.Int64Counter("intake.exchanges", metric.WithDescription("chat exchanges started"))
	if err != nil {
		return nil, fmt.Errorf("create exchanges counter: %w", err)
	}
	failures, err := meter.Int64Counter("intake.exchange.failures", metric.WithDescription("chat exchanges that ended without commit"))
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	corrections, err := meter.Int64Counter("intake.consistency.corrections", metric.WithDescription("replies replaced by a persona correction"))
	if err != nil {
		return nil, fmt.Errorf("create corrections counter: %w", err)
	}

	return &Orchestrator{
		store:            cfg.Store,
		completer:        cfg.Completer,
		maxTokens:        cfg.MaxTokens,
		injectReminder:   cfg.InjectReminder,
		checkConsistency: cfg.CheckConsistency,
		logger:           cfg.Logger,
		tracer:           otel.Tracer(instrumentationName),
		exchanges:        exchanges,
		failures:         failures,
		corrections:      corrections,
	}, nil
}

// Exchange sends message on behalf of the interviewer and streams the
// patient's reply to emit. On success the user and assistant turns are
// committed and a done event is emitted. On any failure, including a
// cancelled ctx or a failing emit, nothing is committed and an error event is
// attempted.
func (o *Orchestrator) Exchange(ctx context.Context, sessionID, message string, emit Sink) error {
	ctx, span := o.tracer.Start(ctx, "conversation.Exchange", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	o.exchanges.Add(ctx, 1)

	if strings.TrimSpace(message) == "" {
		return o.fail(ctx, span, emit, sessionID, ErrEmptyMessage)
	}

	release, err := o.store.Acquire(ctx, sessionID)
	if err != nil {
		return o.fail(ctx, span, emit, sessionID, err)
	}
	defer release()

	session, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return o.fail(ctx, span, emit, sessionID, err)
	}

	reply, err := o.stream(ctx, o.compose(session, message), emit)
	if err != nil {
		return o.fail(ctx, span, emit, sessionID, err)
	}

	if o.checkConsistency && !ai.CheckConsistent(reply, session.Persona) {
		o.logger.Warn("reply contradicted persona, substituting correction",
			"session", sessionID, "reply_length", len(reply))
		o.corrections.Add(ctx, 1)
		span.AddEvent("consistency.correction")

		reply = ai.GenerateCorrection(session.Persona)
		if err := emit(Event{Delta: reply}); err != nil {
			return o.fail(ctx, span, emit, sessionID, fmt.Errorf("emit correction: %w", err))
		}
	}

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, span, emit, sessionID, err)
	}

	if err := o.store.AppendTurns(ctx, sessionID, chat.UserTurn(message), chat.AssistantTurn(reply)); err != nil {
		return o.fail(ctx, span, emit, sessionID, err)
	}

	if err := emit(Event{Done: true}); err != nil {
		o.logger.Debug("client left before done event", "session", sessionID, "error", err)
	}

	o.logger.Info("exchange committed", "session", sessionID, "reply_length", len(reply))
	return nil
}

// compose builds the outbound request. Carrier turns stay local and the
// history never opens with an assistant turn.
func (o *Orchestrator) compose(session chat.Session, message string) ai.Request {
	turns := make([]chat.Turn, 0, len(session.Turns)+1)
	for _, turn := range session.Turns {
		if turn.Role == chat.RoleSystem {
			continue
		}
		if len(turns) == 0 && turn.Role == chat.RoleAssistant {
			continue
		}
		turns = append(turns, turn)
	}

	outbound := message
	if o.injectReminder {
		outbound = ai.AugmentUserMessage(ai.CompileReminder(session.Persona), message)
	}
	turns = append(turns, chat.UserTurn(outbound))

	return ai.Request{
		System:    session.Instruction,
		Turns:     turns,
		MaxTokens: o.maxTokens,
	}
}

func (o *Orchestrator) stream(ctx context.Context, req ai.Request, emit Sink) (string, error) {
	stream, err := o.completer.Stream(ctx, req)
	if err != nil {
		return "", &CompletionError{Err: err}
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &CompletionError{Err: err}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		reply.WriteString(chunk.Content)
		if err := emit(Event{Delta: chunk.Content}); err != nil {
			return "", fmt.Errorf("emit delta: %w", err)
		}
	}

	return reply.String(), nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, emit Sink, sessionID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.failures.Add(ctx, 1)

	o.logger.Error("exchange failed", "session", sessionID, "error", err)

	if emitErr := emit(Event{Error: describe(err)}); emitErr != nil {
		o.logger.Debug("could not deliver error event", "session", sessionID, "error", emitErr)
	}
	return err
}

// describe turns err into the message shown to the interviewer.
func describe(err error) string {
	var completionErr *CompletionError
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return "Session not found. Please start a new session."
	case errors.Is(err, ErrEmptyMessage):
		return "Message is required."
	case errors.As(err, &completionErr):
		return "The patient could not respond: " + completionErr.Err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled."
	default:
		return err.Error()
	}
}
