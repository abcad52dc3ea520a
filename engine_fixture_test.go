package goGuard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testPassword = "correct-password-123"

	ipBerlin  = "203.0.113.10"
	ipBerlin2 = "203.0.113.11"
	ipTokyo   = "198.51.100.7"

	fpLaptop = "fp-laptop"
	fpPhone  = "fp-phone"
)

var testLocations = geo.Static{
	ipBerlin:  {City: "Berlin", Country: "DE", Latitude: 52.52, Longitude: 13.405},
	ipBerlin2: {City: "Berlin", Country: "DE", Latitude: 52.52, Longitude: 13.405},
	ipTokyo:   {City: "Tokyo", Country: "JP", Latitude: 35.6762, Longitude: 139.6503},
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryUsers is an in-memory CredentialStore.
type memoryUsers struct {
	mu         sync.Mutex
	byID       map[string]*UserRecord
	byIdentity map[string]string
	seq        int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		byID:       map[string]*UserRecord{},
		byIdentity: map[string]string{},
	}
}

func (m *memoryUsers) GetUserByIdentity(_ context.Context, identity string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdentity[strings.ToLower(identity)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *m.byID[id], nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *u, nil
}

func (m *memoryUsers) CreateUser(_ context.Context, rec UserRecord) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(rec.Identity)
	if _, ok := m.byIdentity[key]; ok {
		return UserRecord{}, ErrDuplicateIdentity
	}
	m.seq++
	rec.ID = fmt.Sprintf("user-%d", m.seq)
	m.byID[rec.ID] = &rec
	m.byIdentity[key] = rec.ID
	return rec, nil
}

func (m *memoryUsers) UpdateRole(_ context.Context, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (m *memoryUsers) IncrementRiskScore(_ context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RiskScore += delta
	return nil
}

func (m *memoryUsers) ResetRiskScore(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RiskScore = 0
	return nil
}

func (m *memoryUsers) riskScore(t *testing.T, userID string) int {
	t.Helper()
	u, err := m.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("lookup %s: %v", userID, err)
	}
	return u.RiskScore
}

// recordingSender keeps every delivered notification.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) ofKind(kind notify.Kind) []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Message
	for _, m := range s.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) waitFor(t *testing.T, kind notify.Kind, n int) []notify.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := s.ofKind(kind)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d %s notifications, got %d", n, kind, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

func codeFrom(t *testing.T, msg notify.Message) string {
	t.Helper()
	code := codePattern.FindString(msg.Body)
	if code == "" {
		t.Fatalf("no code in message body %q", msg.Body)
	}
	return code
}

type engineFixture struct {
	engine *Engine
	users  *memoryUsers
	sender *recordingSender
	clock  *testClock
	mr     *miniredis.Miniredis
	db     *gorm.DB
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.PublicKey = nil
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Notification.RetryInterval = time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := session.NewGormStore(db).AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate sessions: %v", err)
	}
	return db
}

func newEngineFixture(t *testing.T, cfg Config, opts ...func(*Builder)) *engineFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &engineFixture{
		users:  newMemoryUsers(),
		sender: &recordingSender{},
		clock:  newTestClock(),
		mr:     mr,
		db:     newTestDB(t),
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDB(f.db).
		WithCredentialStore(f.users).
		WithGeoResolver(testLocations).
		WithNotificationSender(f.sender).
		WithClock(f.clock.Now)
	b.counter = rate.NewMemoryCounter(f.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *engineFixture) createUser(t *testing.T, identity string) UserRecord {
	t.Helper()
	u, err := f.engine.CreateAccount(context.Background(), identity, testPassword, RoleUser)
	if err != nil {
		t.Fatalf("create account %s: %v", identity, err)
	}
	return u
}

func (f *engineFixture) login(t *testing.T, identity string, client ClientInfo) TokenPair {
	t.Helper()
	pair, err := f.engine.Login(context.Background(), identity, testPassword, client)
	if err != nil {
		t.Fatalf("login %s: %v", identity, err)
	}
	return pair
}

func laptopIn(ip string) ClientInfo {
	return ClientInfo{IP: ip, UserAgent: "Mozilla/5.0 (X11; Linux x86_64)", Fingerprint: fpLaptop, DisplayName: "Laptop"}
}

func phoneIn(ip string) ClientInfo {
	return ClientInfo{IP: ip, UserAgent: "Mozilla/5.0 (iPhone)", Fingerprint: fpPhone, DisplayName: "Phone"}
}
