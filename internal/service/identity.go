package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/voss-go/internal/db"
	"github.com/raphaelgruber/voss-go/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// IdentityStore is the persistence the identity flows need.
type IdentityStore interface {
	CreateUser(ctx context.Context, in db.UserInput) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetAct(ctx context.Context, id, act string) error
	CreateSession(ctx context.Context, token, userID string, ttl time.Duration) (*models.Session, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// IdentityService handles registration, login and cookie sessions.
type IdentityService struct {
	store  IdentityStore
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewIdentityService creates an identity service. ttl <= 0 uses DefaultSessionTTL.
func NewIdentityService(store IdentityStore, ttl time.Duration, logger *slog.Logger) *IdentityService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		store:  store,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger.With("component", "identity"),
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name        string
	Password    string
	Age         int
	Gender      string
	Personality string
	Tone        string
	Persona     string
	Custom      string
}

// NormalizeUsername lower-cases and trims a login name.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register creates a user and opens a session for it.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*models.User, *models.Session, error) {
	username := NormalizeUsername(in.Name)
	if username == "" || in.Password == "" {
		return nil, nil, validationError("missing username or password")
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, storeError("get user", err)
	}
	if existing != nil {
		return nil, nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	tone := strings.ToLower(strings.TrimSpace(in.Tone))
	user, err := s.store.CreateUser(ctx, db.UserInput{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Profile: models.Profile{
			Name:        strings.TrimSpace(in.Name),
			Age:         in.Age,
			Gender:      in.Gender,
			Personality: in.Personality,
			Tone:        tone,
			Persona:     in.Persona,
			Custom:      in.Custom,
		},
	})
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, storeError("create user", err)
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user registered", "actor", user.ActorID(), "username", username)
	return user, session, nil
}

// Login verifies credentials and opens a session.
func (s *IdentityService) Login(ctx context.Context, name, password string) (*models.User, *models.Session, error) {
	username := NormalizeUsername(name)
	if username == "" || password == "" {
		return nil, nil, validationError("missing username or password")
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, storeError("get user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

func (s *IdentityService) openSession(ctx context.Context, user *models.User) (*models.Session, error) {
	session, err := s.store.CreateSession(ctx, uuid.NewString(), user.ActorID(), s.ttl)
	if err != nil {
		return nil, storeError("create session", err)
	}
	return session, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (s *IdentityService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return storeError("delete session", err)
	}
	return nil
}

// CurrentActor resolves a session token to an actor id.
func (s *IdentityService) CurrentActor(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		return "", storeError("get session", err)
	}
	if session == nil || session.User == "" || session.Expired(s.now()) {
		return "", ErrUnauthenticated
	}
	return session.User, nil
}

// Profile returns the actor's user record.
func (s *IdentityService) Profile(ctx context.Context, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, storeError("get user", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// ListUsers returns every registered user.
func (s *IdentityService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

// SetAct moves the actor to another lore act.
func (s *IdentityService) SetAct(ctx context.Context, actorID, act string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}
	if !models.IsAct(act) {
		return validationError("invalid act")
	}
	if err := s.store.SetAct(ctx, actorID, act); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrUnauthenticated
		}
		return storeError("set act", err)
	}
	return nil
}
