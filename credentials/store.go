package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User is the durable user row.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Identity     string `gorm:"size:320;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:256;not null"`
	Role         string `gorm:"size:16;not null;default:user"`
	Verified     bool   `gorm:"not null;default:false"`
	RiskScore    int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string { return "users" }

func (u *User) record() goGuard.UserRecord {
	return goGuard.UserRecord{
		ID:           u.ID,
		Identity:     u.Identity,
		PasswordHash: u.PasswordHash,
		Role:         goGuard.Role(u.Role),
		Verified:     u.Verified,
		RiskScore:    u.RiskScore,
	}
}

// Store implements goGuard.CredentialStore on gorm. Open the database with
// gorm.Config{TranslateError: true} so unique violations surface as
// goGuard.ErrDuplicateIdentity even under concurrent sign-ups.
type Store struct {
	db *gorm.DB
}

var _ goGuard.CredentialStore = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&User{})
}

// NormalizeIdentity lowercases and trims an email-style identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func (s *Store) GetUserByIdentity(ctx context.Context, identity string) (goGuard.UserRecord, error) {
	var u User
	err := s.db.WithContext(ctx).Where("identity = ?", NormalizeIdentity(identity)).First(&u).Error
	if err != nil {
		return goGuard.UserRecord{}, storeErr(err)
	}
	return u.record(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (goGuard.UserRecord, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return goGuard.UserRecord{}, storeErr(err)
	}
	return u.record(), nil
}

// CreateUser inserts rec, assigning an id when empty and defaulting the role
// to user.
func (s *Store) CreateUser(ctx context.Context, rec goGuard.UserRecord) (goGuard.UserRecord, error) {
	u := User{
		ID:           rec.ID,
		Identity:     NormalizeIdentity(rec.Identity),
		PasswordHash: rec.PasswordHash,
		Role:         string(rec.Role),
		Verified:     rec.Verified,
		RiskScore:    rec.RiskScore,
	}
	if u.Identity == "" || u.PasswordHash == "" {
		return goGuard.UserRecord{}, goGuard.ErrInvalidInput
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = string(goGuard.RoleUser)
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return goGuard.UserRecord{}, goGuard.ErrDuplicateIdentity
		}
		return goGuard.UserRecord{}, storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return goGuard.UserRecord{}, goGuard.ErrDuplicateIdentity
	}
	return u.record(), nil
}

func (s *Store) UpdateRole(ctx context.Context, userID string, role goGuard.Role) error {
	return s.updateOne(ctx, userID, "role", string(role))
}

// MarkVerified flips the verification flag.
func (s *Store) MarkVerified(ctx context.Context, userID string) error {
	return s.updateOne(ctx, userID, "verified", true)
}

// IncrementRiskScore adds delta in a single UPDATE so concurrent incidents
// never lose an increment.
func (s *Store) IncrementRiskScore(ctx context.Context, userID string, delta int) error {
	return s.updateOne(ctx, userID, "risk_score", gorm.Expr("risk_score + ?", delta))
}

func (s *Store) ResetRiskScore(ctx context.Context, userID string) error {
	return s.updateOne(ctx, userID, "risk_score", 0)
}

func (s *Store) updateOne(ctx context.Context, userID, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).UpdateColumn(column, value)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return goGuard.ErrUserNotFound
	}
	return nil
}

func storeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return goGuard.ErrUserNotFound
	}
	return fmt.Errorf("%w: %v", goGuard.ErrStoreUnavailable, err)
}
