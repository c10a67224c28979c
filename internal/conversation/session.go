// Package conversation mediates the dialogue between the player and one character.
//
// A Session keeps the character's own display log and the request context sent to the completion backend. Every
// user and character turn also goes to the shared transcript so that other characters can be resynced with it.
// All Session methods must be called on the event loop; completions run on worker goroutines and their results
// are handed back to the loop before any state is touched.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/myrjola/turingtrial/internal/character"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
)

var (
	ErrEmptyInput     = errors.NewSentinel("empty input")
	ErrInFlight       = errors.NewSentinel("request already in flight")
	ErrNothingToRetry = errors.NewSentinel("nothing to retry")
	ErrNotRetryable   = errors.NewSentinel("failure cannot be fixed by retrying")
)

// DetectiveName is the speaker name of user turns.
const DetectiveName = "Detective"

type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []ai.Message) (string, error)
}

// Dispatcher runs work on a background goroutine and applies the returned closure on the event loop.
type Dispatcher interface {
	Go(ctx context.Context, work func() func())
}

type Transcript interface {
	Append(turn models.Turn) int64
	Snapshot() []models.Turn
}

type Progress interface {
	MarkEngaged(id models.CharacterID) bool
}

type EventKind string

const (
	// EventTurn is emitted when a turn is added to the session log.
	EventTurn EventKind = "turn"
	// EventBusy is emitted when the in-flight state changes.
	EventBusy EventKind = "busy"
	// EventResynced is emitted after the request context has been rebuilt.
	EventResynced EventKind = "resynced"
)

type Event struct {
	Kind      EventKind
	Character models.CharacterID
	Turn      models.Turn
	InFlight  bool
	// Err is set for failure turns.
	Err error
}

type Options struct {
	Character  character.Character
	Completer  Completer
	Transcript Transcript
	Progress   Progress
	Dispatcher Dispatcher
	Logger     *slog.Logger
	// Timeout bounds a single completion request. Zero means no timeout.
	Timeout time.Duration
	// Names resolves the display names of characters addressed in replayed user turns.
	Names map[models.CharacterID]string
}

type Session struct {
	character  character.Character
	completer  Completer
	shared     Transcript
	progress   Progress
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
	names      map[models.CharacterID]string

	messages  []ai.Message
	log       []models.Turn
	inFlight  bool
	failure   error
	observers []func(Event)
}

func New(opts Options) *Session {
	return &Session{
		character:  opts.Character,
		completer:  opts.Completer,
		shared:     opts.Transcript,
		progress:   opts.Progress,
		dispatcher: opts.Dispatcher,
		logger: opts.Logger.With("source", "Session",
			slog.String("character", string(opts.Character.ID()))),
		timeout:   opts.Timeout,
		names:     opts.Names,
		messages:  nil,
		log:       nil,
		inFlight:  false,
		failure:   nil,
		observers: nil,
	}
}

func (s *Session) Character() character.Character {
	return s.character
}

func (s *Session) Subscribe(fn func(Event)) {
	s.observers = append(s.observers, fn)
}

func (s *Session) emit(event Event) {
	event.Character = s.character.ID()
	for _, fn := range s.observers {
		fn(event)
	}
}

// Start begins a fresh conversation seeded only with the system prompt.
func (s *Session) Start() {
	s.messages = nil
	s.log = nil
	s.failure = nil
}

// Resync rebuilds the request context from the system prompt and the whole shared transcript. Call it when the
// player comes back to this character, since others may have spoken in the meantime.
func (s *Session) Resync() {
	snapshot := s.shared.Snapshot()
	messages := make([]ai.Message, 0, len(snapshot))
	for _, turn := range snapshot {
		if m, ok := s.render(turn); ok {
			messages = append(messages, m)
		}
	}
	s.messages = messages
	s.emit(Event{Kind: EventResynced, InFlight: s.inFlight})
}

// render turns a shared transcript turn into a request message from this character's point of view. Other
// speakers are tagged with their display name so that the model can tell them apart.
func (s *Session) render(turn models.Turn) (ai.Message, bool) {
	switch turn.Role {
	case models.RoleCharacter:
		if turn.CharacterID == s.character.ID() {
			return ai.Message{Role: ai.RoleAssistant, Content: turn.Content}, true
		}
		return ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("[%s]: %s", turn.Speaker, turn.Content)}, true
	case models.RoleUser:
		return ai.Message{
			Role:    ai.RoleUser,
			Content: fmt.Sprintf("[%s → %s]: %s", turn.Speaker, s.name(turn.Audience), turn.Content),
		}, true
	case models.RoleFailure:
	}
	return ai.Message{}, false
}

func (s *Session) name(id models.CharacterID) string {
	if id == s.character.ID() {
		return s.character.DisplayName()
	}
	if name, ok := s.names[id]; ok {
		return name
	}
	return string(id)
}

// Send asks the character a question. The reply arrives asynchronously. While it is pending, further input is
// rejected with ErrInFlight. ctx bounds the completion request.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if s.inFlight {
		return errors.Wrap(ErrInFlight, "send")
	}

	turn := models.Turn{
		Role:     models.RoleUser,
		Audience: s.character.ID(),
		Speaker:  DetectiveName,
		Content:  text,
	}
	turn.Sequence = s.shared.Append(turn)
	s.log = append(s.log, turn)
	if m, ok := s.render(turn); ok {
		s.messages = append(s.messages, m)
	}
	if s.progress.MarkEngaged(s.character.ID()) {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "character engaged")
	}
	s.emit(Event{Kind: EventTurn, Turn: turn, InFlight: s.inFlight})

	s.dispatch(ctx)
	return nil
}

// Retry sends the request that failed last again without adding a new user turn. Configuration failures are
// not retried since the same request would fail the same way.
func (s *Session) Retry(ctx context.Context) error {
	if s.inFlight {
		return errors.Wrap(ErrInFlight, "retry")
	}
	if s.failure == nil {
		return ErrNothingToRetry
	}
	if !ai.Retryable(s.failure) {
		return errors.Wrap(errors.Join(ErrNotRetryable, s.failure), "retry",
			slog.String("kind", string(ai.KindOf(s.failure))))
	}
	s.dispatch(ctx)
	return nil
}

func (s *Session) dispatch(ctx context.Context) {
	s.inFlight = true
	s.failure = nil
	s.emit(Event{Kind: EventBusy, InFlight: true})

	var (
		systemPrompt = s.character.SystemPrompt()
		request      = slices.Clone(s.messages)
		completer    = s.completer
		timeout      = s.timeout
	)
	s.dispatcher.Go(ctx, func() func() {
		requestCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			requestCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		reply, err := completer.Complete(requestCtx, systemPrompt, request)
		elapsed := time.Since(start)
		return func() {
			s.finish(ctx, reply, err, elapsed)
		}
	})
}

func (s *Session) finish(ctx context.Context, reply string, err error, elapsed time.Duration) {
	s.inFlight = false
	var turn models.Turn
	if err != nil {
		s.failure = err
		s.logger.LogAttrs(ctx, slog.LevelError, "completion failed",
			slog.String("kind", string(ai.KindOf(err))), slog.Duration("elapsed", elapsed), errors.SlogError(err))
		turn = models.Turn{
			Role:        models.RoleFailure,
			CharacterID: s.character.ID(),
			Speaker:     s.character.DisplayName(),
			Content:     failureMessage(err),
		}
	} else {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "completion finished", slog.Duration("elapsed", elapsed))
		turn = models.Turn{
			Role:        models.RoleCharacter,
			CharacterID: s.character.ID(),
			Speaker:     s.character.DisplayName(),
			Content:     reply,
		}
		turn.Sequence = s.shared.Append(turn)
		s.messages = append(s.messages, ai.Message{Role: ai.RoleAssistant, Content: reply})
	}
	s.log = append(s.log, turn)
	s.emit(Event{Kind: EventTurn, Turn: turn, Err: err})
	s.emit(Event{Kind: EventBusy, InFlight: false})
}

func failureMessage(err error) string {
	switch ai.KindOf(err) {
	case ai.KindRateLimit:
		return "The line is busy. Wait a moment and retry."
	case ai.KindConfig:
		return "The completion service is misconfigured. Check the API key and model."
	case ai.KindMalformed:
		return "The reply was garbled. Retry to ask again."
	case ai.KindNetwork:
		return "No reply. Check the connection and retry."
	}
	return "No reply."
}

// InFlight reports whether a completion request is outstanding.
func (s *Session) InFlight() bool {
	return s.inFlight
}

// Failed reports whether the latest request failed.
func (s *Session) Failed() bool {
	return s.failure != nil
}

// Log returns a copy of the session's display log, including failure turns.
func (s *Session) Log() []models.Turn {
	return slices.Clone(s.log)
}

// Context returns the system prompt and a copy of the messages that the next request would send.
func (s *Session) Context() (string, []ai.Message) {
	return s.character.SystemPrompt(), slices.Clone(s.messages)
}
