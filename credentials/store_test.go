package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared in-memory database free of table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewStore(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestCreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, goGuard.UserRecord{Identity: "  Alice@Example.com ", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Identity)
	assert.Equal(t, goGuard.RoleUser, created.Role)

	byIdentity, err := s.GetUserByIdentity(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byIdentity.ID)

	byID, err := s.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Identity)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, goGuard.ErrUserNotFound)
}

func TestCreateDuplicateIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, goGuard.UserRecord{Identity: "bob@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, goGuard.UserRecord{Identity: "BOB@example.com", PasswordHash: "h2"})
	assert.ErrorIs(t, err, goGuard.ErrDuplicateIdentity)

	_, err = s.CreateUser(ctx, goGuard.UserRecord{Identity: "", PasswordHash: "h"})
	assert.ErrorIs(t, err, goGuard.ErrInvalidInput)
}

func TestRiskScoreIncrementsAreAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, goGuard.UserRecord{Identity: "carol@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementRiskScore(ctx, u.ID, 5))
		}()
	}
	wg.Wait()

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.RiskScore)

	require.NoError(t, s.ResetRiskScore(ctx, u.ID))
	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RiskScore)

	assert.ErrorIs(t, s.IncrementRiskScore(ctx, "missing", 1), goGuard.ErrUserNotFound)
}

func TestUpdateRoleAndVerify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, goGuard.UserRecord{Identity: "dave@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRole(ctx, u.ID, goGuard.RoleAdmin))
	require.NoError(t, s.MarkVerified(ctx, u.ID))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, goGuard.RoleAdmin, got.Role)
	assert.True(t, got.Verified)
}

func TestStoreOutageWrapsUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM "users"`).WillReturnError(errors.New("connection refused"))

	_, err = NewStore(db).GetUserByIdentity(context.Background(), "x@example.com")
	assert.ErrorIs(t, err, goGuard.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, goGuard.ErrUserNotFound)
}
