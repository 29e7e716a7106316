package flow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkayan/accounts/internal/captcha"
	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/getkayan/accounts/internal/mail"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "Correct-H0rse"
	testNewPassword = "Battery-St4ple"
	testAnswer      = "424242"
)

type mockRepo struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*identity.User
	deletions map[string]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*identity.User), deletions: make(map[string]uuid.UUID)}
}

func (m *mockRepo) CreateUser(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return domain.ErrEmailTaken
		}
		if strings.EqualFold(other.Username, u.Username) {
			return domain.ErrUsernameTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) UpdatePasswordByEmail(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.PasswordHash = hash
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRepo) UpdateUser(_ context.Context, id uuid.UUID, c identity.Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	for otherID, other := range m.users {
		if otherID == id {
			continue
		}
		if c.Email != nil && other.Email == *c.Email {
			return domain.ErrEmailTaken
		}
		if c.Username != nil && strings.EqualFold(other.Username, *c.Username) {
			return domain.ErrUsernameTaken
		}
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.Username != nil {
		u.Username = *c.Username
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	return nil
}

func (m *mockRepo) RequestDeletion(_ context.Context, userID uuid.UUID, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	m.deletions[tok] = userID
	u.RequestedDeletion = true
	return nil
}

func (m *mockRepo) CancelDeletion(_ context.Context, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.deletions[tok]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.deletions, tok)
	if u, ok := m.users[id]; ok {
		u.RequestedDeletion = false
	}
	return nil
}

func (m *mockRepo) CancelDeletionForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, id := range m.deletions {
		if id == userID {
			delete(m.deletions, tok)
		}
	}
	if u, ok := m.users[userID]; ok {
		u.RequestedDeletion = false
	}
	return nil
}

func (m *mockRepo) PurgeDeletions(context.Context, time.Time) (int, error) { return 0, nil }

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

type mockRevoker struct {
	revoked []uuid.UUID
}

func (r *mockRevoker) DeleteAll(_ context.Context, userID uuid.UUID) error {
	r.revoked = append(r.revoked, userID)
	return nil
}

// linkToken returns the token query parameter at the end of a mail body.
func linkToken(t *testing.T, body string) string {
	t.Helper()
	i := strings.LastIndex(body, "token=")
	if i < 0 {
		t.Fatalf("no token in %q", body)
	}
	return body[i+len("token="):]
}

type fixture struct {
	repo     *mockRepo
	store    *ephemeral.RedisStore
	mr       *miniredis.Miniredis
	emails   *EmailDataset
	captchas *CaptchaManager
	hasher   *BcryptHasher
	mailer   *recordingMailer
	revoker  *mockRevoker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := ephemeral.NewRedisStore(client)

	captchas := NewCaptchaManager(NewCaptchaDataset(store))
	captchas.generate = func(string) (captcha.Challenge, error) {
		return captcha.Challenge{Answer: testAnswer, Image: "aW1n"}, nil
	}

	return &fixture{
		repo:     newMockRepo(),
		store:    store,
		mr:       mr,
		emails:   NewEmailDataset(store),
		captchas: captchas,
		hasher:   NewBcryptHasher(bcrypt.MinCost),
		mailer:   &recordingMailer{},
		revoker:  &mockRevoker{},
	}
}

// addUser stores a user with testPassword.
func (f *fixture) addUser(t *testing.T, email, username string) *identity.User {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := &identity.User{ID: uuid.New(), Email: email, Username: username, PasswordHash: hash}
	if err := f.repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return u
}

// loadCaptcha issues a captcha whose answer is testAnswer.
func (f *fixture) loadCaptcha(t *testing.T) string {
	t.Helper()
	img, err := f.captchas.Load(context.Background())
	if err != nil {
		t.Fatalf("captcha load failed: %v", err)
	}
	return img.ID
}
