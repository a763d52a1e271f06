package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/voss-go/internal/db"
	"github.com/raphaelgruber/voss-go/internal/llm"
	"github.com/raphaelgruber/voss-go/internal/memory"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/raphaelgruber/voss-go/internal/prompt"
)

// ConversationStore is the persistence the conversation flow needs.
type ConversationStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	MergeSymbols(ctx context.Context, id string, symbols []string) ([]string, error)
	CreateThread(ctx context.Context, in db.ThreadInput) (*models.Thread, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	AppendTurn(ctx context.Context, id string, turn models.Turn) (int, error)
	ListThreads(ctx context.Context, owner string) ([]models.ThreadSummary, error)
}

// Memory retrieves and indexes echoes.
type Memory interface {
	Retrieve(ctx context.Context, actorID, query string, topK int) []models.MemoryEntry
	Index(ctx context.Context, in memory.IndexInput) memory.IndexOutcome
}

// Completer produces a reply for an ordered prompt.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// ConversationConfig tunes the conversation flow.
type ConversationConfig struct {
	EchoLimit  int
	Assembler  prompt.Assembler
	Vocabulary *Vocabulary
}

// ConversationService runs one chat exchange end to end.
type ConversationService struct {
	store     ConversationStore
	memory    Memory
	model     Completer
	vocab     *Vocabulary
	assembler prompt.Assembler
	echoLimit int
	locks     *threadLocks
	logger    *slog.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(store ConversationStore, mem Memory, model Completer, cfg ConversationConfig, logger *slog.Logger) *ConversationService {
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = DefaultVocabulary()
	}
	if cfg.EchoLimit <= 0 {
		cfg.EchoLimit = memory.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		store:     store,
		memory:    mem,
		model:     model,
		vocab:     cfg.Vocabulary,
		assembler: cfg.Assembler,
		echoLimit: cfg.EchoLimit,
		locks:     newThreadLocks(),
		logger:    logger.With("component", "conversation"),
	}
}

// SendRequest is one inbound chat message. Tone and Persona override the
// actor's profile for this message only.
type SendRequest struct {
	Message  string
	ThreadID string
	Tone     string
	Persona  string
}

// SendResult is the outcome of a successful exchange.
type SendResult struct {
	Reply    string
	ThreadID string
	Created  bool
	// Symbols is the actor's full symbol set after this message.
	Symbols []string
	// Turns is the thread length after the append.
	Turns   int
	Indexed bool
}

// Send handles one chat message: motif detection, thread creation when no
// thread id is given, echo retrieval, prompt assembly, completion, append and
// best-effort indexing.
func (s *ConversationService) Send(ctx context.Context, actorID string, req SendRequest) (*SendResult, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, validationError("empty message")
	}

	user, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if found := s.vocab.Detect(message); len(found) > 0 {
		merged, err := s.store.MergeSymbols(ctx, actorID, found)
		if err != nil {
			return nil, storeError("merge symbols", err)
		}
		user.Symbols = merged
		s.logger.Info("symbols detected", "actor", actorID, "found", found)
	}

	tone := strings.ToLower(strings.TrimSpace(req.Tone))
	if tone == "" {
		tone = user.Profile.Tone
	}
	persona := prompt.PersonaFor(user, tone, req.Persona).Build()

	threadID := req.ThreadID
	created := false
	if threadID == "" {
		threadID, err = s.openThread(ctx, actorID, persona, message)
		if err != nil {
			return nil, err
		}
		created = true
	}

	reply, turns, err := s.exchange(ctx, actorID, threadID, persona, message)
	if err != nil {
		if created {
			return nil, &ThreadError{ThreadID: threadID, Err: err}
		}
		return nil, err
	}

	outcome := s.memory.Index(ctx, memory.IndexInput{
		ActorID:  actorID,
		Text:     message,
		Response: reply,
		Tone:     tone,
		ThreadID: threadID,
	})

	s.logger.Info("exchange complete", "actor", actorID, "thread", threadID,
		"created", created, "turns", turns, "indexed", outcome.Indexed)

	return &SendResult{
		Reply:    reply,
		ThreadID: threadID,
		Created:  created,
		Symbols:  user.Symbols,
		Turns:    turns,
		Indexed:  outcome.Indexed,
	}, nil
}

// openThread mints a thread id, asks the model for an opening greeting and
// stores the thread with that greeting as turn zero.
func (s *ConversationService) openThread(ctx context.Context, actorID, persona, message string) (string, error) {
	id := uuid.NewString()

	greeting, err := s.complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: persona},
		{Role: llm.RoleUser, Content: prompt.GreetingRequest},
	})
	if err != nil {
		return "", fmt.Errorf("greeting: %w", err)
	}

	if _, err := s.store.CreateThread(ctx, db.ThreadInput{
		ID:       id,
		Owner:    actorID,
		Greeting: greeting,
		Title:    models.Prefix(message, models.TitleLen),
		Preview:  models.Prefix(message, models.PreviewLen),
	}); err != nil {
		return "", storeError("create thread", err)
	}

	s.logger.Info("thread created", "actor", actorID, "thread", id)
	return id, nil
}

// exchange replays the thread, completes and appends under the thread lock.
func (s *ConversationService) exchange(ctx context.Context, actorID, threadID, persona, message string) (string, int, error) {
	unlock, err := s.locks.lock(ctx, threadID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("wait for thread: %w: %w", ErrTimeout, err)
		}
		return "", 0, fmt.Errorf("wait for thread: %w", err)
	}
	defer unlock()

	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return "", 0, storeError("get thread", err)
	}
	if thread == nil || thread.Owner != actorID {
		return "", 0, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	echoes := s.memory.Retrieve(ctx, actorID, message, s.echoLimit)
	messages := s.assembler.Assemble(persona, thread.Turns, echoes, message)

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return "", 0, err
	}

	turns, err := s.store.AppendTurn(ctx, threadID, models.Turn{User: message, Assistant: reply})
	if err != nil {
		return "", 0, storeError("append turn", err)
	}
	return reply, turns, nil
}

func (s *ConversationService) complete(ctx context.Context, messages []llm.Message) (string, error) {
	reply, err := s.model.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return strings.TrimSpace(reply), nil
}

func (s *ConversationService) actor(ctx context.Context, actorID string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, storeError("get user", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Greet produces a fresh greeting for the actor, informed by echoes that
// resemble the actor's name.
func (s *ConversationService) Greet(ctx context.Context, actorID string) (string, error) {
	if actorID == "" {
		return "", ErrUnauthenticated
	}
	user, err := s.actor(ctx, actorID)
	if err != nil {
		return "", err
	}

	persona := prompt.PersonaFor(user, "", "").Build()
	echoes := s.memory.Retrieve(ctx, actorID, user.DisplayName(), s.echoLimit)
	return s.complete(ctx, s.assembler.Assemble(persona, nil, echoes, prompt.GreetingRequest))
}

// Threads lists the actor's threads.
func (s *ConversationService) Threads(ctx context.Context, actorID string) ([]models.ThreadSummary, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}
	threads, err := s.store.ListThreads(ctx, actorID)
	if err != nil {
		return nil, storeError("list threads", err)
	}
	return threads, nil
}

// History returns the turns of an owned thread. Unknown and foreign threads
// yield an empty history.
func (s *ConversationService) History(ctx context.Context, actorID, threadID string) ([]models.Turn, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}
	if threadID == "" {
		return []models.Turn{}, nil
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, storeError("get thread", err)
	}
	if thread == nil || thread.Owner != actorID {
		return []models.Turn{}, nil
	}
	return thread.Turns, nil
}
