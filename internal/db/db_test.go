//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDimension = 8

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Ryuk can fail to start in some CI sandboxes.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx, testDimension); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// axis returns a unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, testDimension)
	v[i%testDimension] = 1
	return v
}

func createTestUser(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), UserInput{
		ID:           uuid.NewString(),
		Username:     username + "-" + uuid.NewString()[:8],
		PasswordHash: "hash",
		Profile:      models.Profile{Name: username, Tone: "witty"},
	})
	require.NoError(t, err)
	return u
}

func TestClientQuery(t *testing.T) {
	result, err := testDB.Query(context.Background(), "RETURN 1", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "nyx")

	assert.Equal(t, "nyx", u.Profile.Name)
	assert.Equal(t, models.ActWound, u.Act)
	assert.Empty(t, u.Symbols)

	got, err := testDB.GetUser(ctx, u.ActorID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, "witty", got.Profile.Tone)

	byName, err := testDB.GetUserByUsername(ctx, u.Username)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ActorID(), byName.ActorID())

	missing, err := testDB.GetUser(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "dup")

	_, err := testDB.CreateUser(ctx, UserInput{
		ID:           uuid.NewString(),
		Username:     u.Username,
		PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMergeSymbolsIsUnion(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "sym")

	got, err := testDB.MergeSymbols(ctx, u.ActorID(), []string{"Chain Letter"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Chain Letter"}, got)

	got, err = testDB.MergeSymbols(ctx, u.ActorID(), []string{"Chain Letter", "Shattered Mirror"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Chain Letter", "Shattered Mirror"}, got)

	got, err = testDB.MergeSymbols(ctx, u.ActorID(), []string{"Chain Letter"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = testDB.MergeSymbols(ctx, uuid.NewString(), []string{"The Wound"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAct(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "act")

	require.NoError(t, testDB.SetAct(ctx, u.ActorID(), models.ActReckoning))
	got, err := testDB.GetUser(ctx, u.ActorID())
	require.NoError(t, err)
	assert.Equal(t, models.ActReckoning, got.Act)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "sess")
	token := uuid.NewString()

	s, err := testDB.CreateSession(ctx, token, u.ActorID(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, u.ActorID(), s.User)
	assert.True(t, s.ExpiresAt.After(time.Now()))

	got, err := testDB.GetSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, testDB.DeleteSession(ctx, token))
	require.NoError(t, testDB.DeleteSession(ctx, token))

	got, err = testDB.GetSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExpiredSessionIgnored(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "expired")
	token := uuid.NewString()

	_, err := testDB.CreateSession(ctx, token, u.ActorID(), time.Second)
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)

	got, err := testDB.GetSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := testDB.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestCreateThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "thread")
	id := uuid.NewString()

	in := ThreadInput{ID: id, Owner: u.ActorID(), Greeting: "Welcome back.", Title: "I found a chain letter", Preview: "I found a chain letter"}
	thread, err := testDB.CreateThread(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, thread.ThreadID())
	assert.Equal(t, u.ActorID(), thread.Owner)
	require.Len(t, thread.Turns, 1)
	assert.Equal(t, models.Turn{User: "", Assistant: "Welcome back."}, thread.Turns[0])

	in.Greeting = "A different greeting"
	again, err := testDB.CreateThread(ctx, in)
	require.NoError(t, err)
	require.Len(t, again.Turns, 1)
	assert.Equal(t, "Welcome back.", again.Turns[0].Assistant)

	owner, err := testDB.GetUser(ctx, u.ActorID())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, owner.ThreadIDs)
}

func TestAppendTurnPreservesOrder(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "append")
	id := uuid.NewString()
	_, err := testDB.CreateThread(ctx, ThreadInput{ID: id, Owner: u.ActorID(), Greeting: "hello", Title: "t", Preview: "p"})
	require.NoError(t, err)

	prev := 1
	for i := 0; i < 5; i++ {
		n, err := testDB.AppendTurn(ctx, id, models.Turn{User: fmt.Sprintf("q%d", i), Assistant: fmt.Sprintf("a%d", i)})
		require.NoError(t, err)
		assert.Equal(t, prev+1, n)
		prev = n
	}

	thread, err := testDB.GetThread(ctx, id)
	require.NoError(t, err)
	require.Len(t, thread.Turns, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("q%d", i), thread.Turns[i+1].User)
	}

	_, err = testDB.AppendTurn(ctx, uuid.NewString(), models.Turn{User: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendTurnConcurrent(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "concurrent")
	id := uuid.NewString()
	_, err := testDB.CreateThread(ctx, ThreadInput{ID: id, Owner: u.ActorID(), Greeting: "hello", Title: "t", Preview: "p"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				_, err := testDB.AppendTurn(ctx, id, models.Turn{User: fmt.Sprint(i), Assistant: "ok"})
				if err == nil {
					return
				}
				// Concurrent writers on one record may be rolled back.
				if !assert.ErrorIs(t, err, ErrTransactionConflict) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	thread, err := testDB.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Len(t, thread.Turns, 11)
}

func TestListThreads(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "list")
	other := createTestUser(t, "other")

	for i := 0; i < 2; i++ {
		_, err := testDB.CreateThread(ctx, ThreadInput{ID: uuid.NewString(), Owner: u.ActorID(), Greeting: "g", Title: fmt.Sprint("title ", i), Preview: "p"})
		require.NoError(t, err)
	}
	_, err := testDB.CreateThread(ctx, ThreadInput{ID: uuid.NewString(), Owner: other.ActorID(), Greeting: "g", Title: "theirs", Preview: "p"})
	require.NoError(t, err)

	threads, err := testDB.ListThreads(ctx, u.ActorID())
	require.NoError(t, err)
	assert.Len(t, threads, 2)
	for _, th := range threads {
		assert.NotEqual(t, "theirs", th.Title)
	}
}

func TestNearestMemoriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "mem")
	reply := "The letter remembers you."
	thread := uuid.NewString()

	require.NoError(t, testDB.InsertMemory(ctx, models.MemoryEntry{
		Owner: u.ActorID(), Text: "I found a chain letter", Response: &reply,
		Tone: "witty", Thread: &thread, Embedding: axis(1),
	}))
	require.NoError(t, testDB.InsertMemory(ctx, models.MemoryEntry{
		Owner: u.ActorID(), Text: "unrelated", Tone: "oracle", Embedding: axis(5),
	}))

	rows, err := testDB.NearestMemories(ctx, axis(1), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "I found a chain letter", rows[0].Text)
	assert.Equal(t, "witty", rows[0].Tone)
	require.NotNil(t, rows[0].Response)
	assert.Equal(t, reply, *rows[0].Response)
	require.NotNil(t, rows[0].Thread)
	assert.Equal(t, thread, *rows[0].Thread)
	assert.InDelta(t, 0, rows[0].Distance, 1e-6)

	n, err := testDB.CountMemories(ctx, u.ActorID())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNearestMemoriesZeroLimit(t *testing.T) {
	rows, err := testDB.NearestMemories(context.Background(), axis(0), 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
