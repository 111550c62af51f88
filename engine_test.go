package identity

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mydrive/identity/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testEngineConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessSecret:  []byte("test-access-secret-0123456789-0123"),
			RefreshSecret: []byte("test-refresh-secret-0123456789-012"),
			Issuer:        "identity-test",
		},
		// Cheap argon2 parameters; these tests measure flow, not hardness.
		Password: password.Config{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		VerifyLinkBase: "https://mydrive.test/verify-link",
	}
}

func newTestEngine(t *testing.T, rdb *redis.Client) (*Engine, *fakeDirectory, *captureMailer) {
	t.Helper()

	dir := newFakeDirectory()
	mailer := &captureMailer{}

	engine, err := New(testEngineConfig(), rdb, dir, mailer)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine, dir, mailer
}

// seedAccount creates a directory account the way the registration flow
// would have, with a real password hash.
func seedAccount(t *testing.T, engine *Engine, dir *fakeDirectory, username, email, pass string) *Account {
	t.Helper()

	hash, err := engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	account, err := dir.Create(context.Background(), NewAccount{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	return account
}

type captureMailer struct {
	mu    sync.Mutex
	mails []OTPMail
}

func (m *captureMailer) SendOTP(_ context.Context, mail OTPMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, mail)
	return nil
}

func (m *captureMailer) last(t *testing.T) OTPMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.mails) == 0 {
		t.Fatal("no otp mail was sent")
	}
	return m.mails[len(m.mails)-1]
}

// linkToken extracts the verification token from the deep link of the last
// mail, the way a user clicking the email button would present it.
func (m *captureMailer) linkToken(t *testing.T) string {
	t.Helper()

	link := m.last(t).VerifyLink
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad verify link %q: %v", link, err)
	}
	tkn := parsed.Query().Get("token")
	if tkn == "" {
		t.Fatalf("verify link %q has no token", link)
	}
	return tkn
}

type fakeDirectory struct {
	mu         sync.Mutex
	byID       map[string]*Account
	byEmail    map[string]string
	byUsername map[string]string
	nextID     int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:       make(map[string]*Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byEmail[email]; ok {
		account := *d.byID[id]
		return &account, nil
	}
	return nil, ErrAccountNotFound
}

func (d *fakeDirectory) FindByUsername(_ context.Context, username string) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byUsername[username]; ok {
		account := *d.byID[id]
		return &account, nil
	}
	return nil, ErrAccountNotFound
}

func (d *fakeDirectory) Create(_ context.Context, account NewAccount) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[account.Email]; ok {
		return nil, ErrAccountExists
	}
	if _, ok := d.byUsername[account.Username]; ok {
		return nil, ErrAccountExists
	}

	d.nextID++
	created := &Account{
		ID:           "u" + strconv.Itoa(d.nextID),
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		FirstName:    account.FirstName,
		LastName:     account.LastName,
	}
	d.byID[created.ID] = created
	d.byEmail[created.Email] = created.ID
	d.byUsername[created.Username] = created.ID

	copied := *created
	return &copied, nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.byID[userID]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

