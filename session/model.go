package session

import (
	"time"

	"github.com/MrEthical07/goGuard/geo"
)

// Status is the lifecycle state of a durable session row.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusRevoked  Status = "REVOKED"
)

// Session is one authenticated device/browser instance for one user. It is
// the durable record of truth; the raw refresh token is never stored.
type Session struct {
	ID               string `gorm:"primaryKey;size:36"`
	UserID           string `gorm:"size:64;index;not null"`
	RefreshTokenHash string `gorm:"size:64;uniqueIndex;not null"`

	DeviceFingerprint string `gorm:"size:256;index"`
	UserAgent         string `gorm:"size:512"`
	DeviceDisplayName string `gorm:"size:128"`

	IPFirstSeen     string `gorm:"size:64"`
	IPLastSeen      string `gorm:"size:64"`
	IPLastChangedAt time.Time
	IPChangeCount   int          `gorm:"not null;default:0"`
	Location        geo.Location `gorm:"embedded;embeddedPrefix:location_"`

	Status             Status     `gorm:"size:16;index;not null"`
	CreatedAt          time.Time  `gorm:"not null"`
	LastActiveAt       time.Time  `gorm:"index;not null"`
	RefreshTokenExpiry time.Time  `gorm:"not null"`
	IsLegacy           bool       `gorm:"not null;default:false"`
	IsSuspicious       bool       `gorm:"not null;default:false"`
	ExpireAt           *time.Time `gorm:"index"`
}

func (Session) TableName() string { return "sessions" }

// CacheEntry is the ephemeral mirror of a Session kept in the fast store,
// keyed by refresh token hash. LastActiveAt tracks the last durable activity
// write, which is what the write throttle measures against.
type CacheEntry struct {
	Version            int          `json:"v"`
	SessionID          string       `json:"sid"`
	UserID             string       `json:"uid"`
	Fingerprint        string       `json:"fp"`
	IPLastSeen         string       `json:"ip"`
	IPLastChangedAt    time.Time    `json:"ipc"`
	LastActiveAt       time.Time    `json:"la"`
	RefreshTokenExpiry time.Time    `json:"rx"`
	Location           geo.Location `json:"loc"`
}

// Snapshot is what validation hands back to the caller. The signal fields
// (IPLastSeen, LastActiveAt, Location) are the values known before the
// current request; CurrentLocation is freshly resolved when IPChanged.
type Snapshot struct {
	SessionID          string
	UserID             string
	Fingerprint        string
	IPLastSeen         string
	IPLastChangedAt    time.Time
	LastActiveAt       time.Time
	RefreshTokenExpiry time.Time
	Location           geo.Location

	IPChanged       bool
	CurrentLocation geo.Location
	CacheHit        bool
	Persisted       bool
}

// NewSession is the input to [Repository.CreateSession]. IP, user agent and
// fingerprint are supplied by the caller; the repository never derives them.
type NewSession struct {
	UserID          string
	IP              string
	UserAgent       string
	Fingerprint     string
	DisplayName     string
	Location        geo.Location
	RawRefreshToken string
	IsLegacy        bool
}

// IPChange carries the fields written when a session is seen from a new address.
type IPChange struct {
	IP       string
	At       time.Time
	Location geo.Location
}

func entryFromSession(s *Session) *CacheEntry {
	return &CacheEntry{
		Version:            cacheEntryVersionCurrent,
		SessionID:          s.ID,
		UserID:             s.UserID,
		Fingerprint:        s.DeviceFingerprint,
		IPLastSeen:         s.IPLastSeen,
		IPLastChangedAt:    s.IPLastChangedAt,
		LastActiveAt:       s.LastActiveAt,
		RefreshTokenExpiry: s.RefreshTokenExpiry,
		Location:           s.Location,
	}
}

func snapshotFromEntry(e *CacheEntry) *Snapshot {
	return &Snapshot{
		SessionID:          e.SessionID,
		UserID:             e.UserID,
		Fingerprint:        e.Fingerprint,
		IPLastSeen:         e.IPLastSeen,
		IPLastChangedAt:    e.IPLastChangedAt,
		LastActiveAt:       e.LastActiveAt,
		RefreshTokenExpiry: e.RefreshTokenExpiry,
		Location:           e.Location,
		CurrentLocation:    e.Location,
	}
}
