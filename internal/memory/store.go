// Package memory indexes past exchanges as embeddings and retrieves the ones
// most similar to a new message, scoped to the actor who owns them.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// DefaultTopK is the number of echoes returned when the caller passes topK <= 0.
const DefaultTopK = 3

var (
	// ErrEmbeddingUnavailable means the provider failed or returned no vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexWrite means the entry was embedded but could not be stored.
	ErrIndexWrite = errors.New("memory index write failed")
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Repository persists entries and runs nearest-neighbour queries across all owners.
type Repository interface {
	InsertMemory(ctx context.Context, entry models.MemoryEntry) error
	NearestMemories(ctx context.Context, vector []float32, limit int) ([]models.MemoryEntry, error)
}

// Config tunes retrieval.
type Config struct {
	// TopK is the default result size.
	TopK int
	// Candidates is how many nearest entries are fetched before the owner
	// filter. Values below topK mean topK.
	Candidates int
}

// Store is the actor-scoped memory index.
type Store struct {
	embedder Embedder
	repo     Repository
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewStore creates a memory store. logger and collector may be nil.
func NewStore(embedder Embedder, repo Repository, cfg Config, logger *slog.Logger, collector *metrics.Collector) *Store {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		embedder: embedder,
		repo:     repo,
		cfg:      cfg,
		logger:   logger.With("component", "memory"),
		metrics:  collector,
	}
}

// IndexInput describes one exchange to remember.
type IndexInput struct {
	ActorID  string
	Text     string
	Response string
	Tone     string
	ThreadID string
}

// IndexOutcome reports whether an exchange was stored. Err is nil on success
// and wraps ErrEmbeddingUnavailable or ErrIndexWrite otherwise.
type IndexOutcome struct {
	Indexed bool
	Err     error
}

// Index embeds in.Text and stores it. It never fails the caller: a skipped
// index is logged, counted and reported in the outcome.
func (s *Store) Index(ctx context.Context, in IndexInput) IndexOutcome {
	vector, err := s.embedder.Embed(ctx, in.Text)
	if err == nil && len(vector) == 0 {
		err = errors.New("empty vector")
	}
	if err != nil {
		return s.skip(in, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err))
	}

	entry := models.MemoryEntry{
		Owner:     in.ActorID,
		Text:      in.Text,
		Tone:      in.Tone,
		Embedding: vector,
	}
	if in.Response != "" {
		entry.Response = &in.Response
	}
	if in.ThreadID != "" {
		entry.Thread = &in.ThreadID
	}

	if err := s.repo.InsertMemory(ctx, entry); err != nil {
		return s.skip(in, fmt.Errorf("%w: %w", ErrIndexWrite, err))
	}

	s.logger.Debug("memory indexed", "actor", in.ActorID, "thread", in.ThreadID, "text_len", len(in.Text))
	return IndexOutcome{Indexed: true}
}

func (s *Store) skip(in IndexInput, err error) IndexOutcome {
	s.metrics.RecordFailure(metrics.OpMemoryIndexSkipped)
	s.logger.Warn("memory index skipped", "actor", in.ActorID, "thread", in.ThreadID, "error", err)
	return IndexOutcome{Err: err}
}

// Retrieve returns up to topK of the actor's entries most similar to query,
// most similar first. The nearest candidates are fetched across all owners
// and then filtered, so the result may be shorter than topK or empty even
// when the actor has entries. Failures degrade to an empty result.
func (s *Store) Retrieve(ctx context.Context, actorID, query string, topK int) []models.MemoryEntry {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	candidates := max(s.cfg.Candidates, topK)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil || len(vector) == 0 {
		s.logger.Warn("echo retrieval skipped", "actor", actorID,
			"error", fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err))
		return []models.MemoryEntry{}
	}

	nearest, err := s.repo.NearestMemories(ctx, vector, candidates)
	if err != nil {
		s.logger.Warn("echo search failed", "actor", actorID, "error", err)
		return []models.MemoryEntry{}
	}

	echoes := make([]models.MemoryEntry, 0, topK)
	for _, entry := range nearest {
		if entry.Owner != actorID {
			continue
		}
		echoes = append(echoes, entry)
		if len(echoes) == topK {
			break
		}
	}

	s.logger.Debug("echoes retrieved", "actor", actorID, "candidates", len(nearest), "echoes", len(echoes))
	return echoes
}
