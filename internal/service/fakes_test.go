package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/raphaelgruber/voss-go/internal/db"
	"github.com/raphaelgruber/voss-go/internal/llm"
	"github.com/raphaelgruber/voss-go/internal/memory"
	"github.com/raphaelgruber/voss-go/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// fakeStore is an in-memory ConversationStore and IdentityStore.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	threads  map[string]*models.Thread
	sessions map[string]*models.Session

	appendErr error
	createErr error
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*models.User{},
		threads:  map[string]*models.Thread{},
		sessions: map[string]*models.Session{},
	}
}

func (f *fakeStore) addUser(id, username string) *models.User {
	u := &models.User{ID: surrealmodels.RecordID{Table: "user", ID: id}, Username: username}
	u.Normalize()
	f.mu.Lock()
	f.users[id] = u
	f.mu.Unlock()
	return u
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.Symbols = append([]string{}, u.Symbols...)
	return &cp, nil
}

func (f *fakeStore) MergeSymbols(_ context.Context, id string, symbols []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	for _, s := range symbols {
		found := false
		for _, have := range u.Symbols {
			if have == s {
				found = true
				break
			}
		}
		if !found {
			u.Symbols = append(u.Symbols, s)
		}
	}
	return append([]string{}, u.Symbols...), nil
}

func (f *fakeStore) CreateThread(_ context.Context, in db.ThreadInput) (*models.Thread, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[in.ID]; ok {
		return t, nil
	}
	t := &models.Thread{
		ID:      surrealmodels.RecordID{Table: "thread", ID: in.ID},
		Owner:   in.Owner,
		Turns:   []models.Turn{{Assistant: in.Greeting}},
		Title:   in.Title,
		Preview: in.Preview,
	}
	f.threads[in.ID] = t
	if u, ok := f.users[in.Owner]; ok {
		u.ThreadIDs = append(u.ThreadIDs, in.ID)
	}
	return t, nil
}

func (f *fakeStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.Turns = append([]models.Turn{}, t.Turns...)
	return &cp, nil
}

func (f *fakeStore) AppendTurn(_ context.Context, id string, turn models.Turn) (int, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return 0, db.ErrNotFound
	}
	t.Turns = append(t.Turns, turn)
	return len(t.Turns), nil
}

func (f *fakeStore) ListThreads(_ context.Context, owner string) ([]models.ThreadSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ThreadSummary
	for _, t := range f.threads {
		if t.Owner == owner {
			out = append(out, models.ThreadSummary{ID: t.ID, Title: t.Title, Preview: t.Preview})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (f *fakeStore) CreateUser(_ context.Context, in db.UserInput) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == in.Username {
			return nil, db.ErrAlreadyExists
		}
	}
	u := &models.User{
		ID:           surrealmodels.RecordID{Table: "user", ID: in.ID},
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Profile:      in.Profile,
	}
	u.Normalize()
	f.users[in.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListUsers(_ context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) SetAct(_ context.Context, id, act string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.Act = act
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, token, userID string, ttl time.Duration) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Session{ID: surrealmodels.RecordID{Table: "session", ID: token}, User: userID, ExpiresAt: time.Now().Add(ttl)}
	f.sessions[token] = s
	return s, nil
}

func (f *fakeStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

// fakeModel answers greetings and replies with canned text and records prompts.
type fakeModel struct {
	mu      sync.Mutex
	prompts [][]llm.Message
	err     error
	// errFrom is the 1-based call from which err is returned; 0 means every call.
	errFrom int
	reply   func(messages []llm.Message) string
}

func (m *fakeModel) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, messages)
	if m.err != nil && len(m.prompts) >= m.errFrom {
		return "", m.err
	}
	if m.reply != nil {
		return m.reply(messages), nil
	}
	last := messages[len(messages)-1].Content
	if last == "Initiate a new symbolic exchange and greet me again." {
		return "  Welcome back, wanderer.  ", nil
	}
	return "The echo answers: " + last, nil
}

func (m *fakeModel) calls() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llm.Message{}, m.prompts...)
}

// fakeMemory is a Memory with fixed echoes that records indexed exchanges.
type fakeMemory struct {
	mu      sync.Mutex
	echoes  []models.MemoryEntry
	queries []string
	indexed []memory.IndexInput
}

func (m *fakeMemory) Retrieve(_ context.Context, actorID, query string, topK int) []models.MemoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	var out []models.MemoryEntry
	for _, e := range m.echoes {
		if e.Owner == actorID && len(out) < topK {
			out = append(out, e)
		}
	}
	return out
}

func (m *fakeMemory) Index(_ context.Context, in memory.IndexInput) memory.IndexOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, in)
	return memory.IndexOutcome{Indexed: true}
}

// failingEmbedder always errors.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding provider down")
}

// nopRepo is a memory.Repository that stores nothing.
type nopRepo struct{}

func (nopRepo) InsertMemory(context.Context, models.MemoryEntry) error { return nil }

func (nopRepo) NearestMemories(context.Context, []float32, int) ([]models.MemoryEntry, error) {
	return nil, nil
}

func threadInput(id, owner string) db.ThreadInput {
	return db.ThreadInput{ID: id, Owner: owner, Greeting: "Welcome.", Title: "t", Preview: "t"}
}
