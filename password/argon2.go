package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinPasswordBytes is the shortest password accepted by Hash.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes caps the input fed to Argon2 when Config
	// leaves MaxPasswordBytes at zero.
	DefaultMaxPasswordBytes = 1024

	phcPrefix = "$argon2id$"
)

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length")
	// ErrMalformedHash covers every stored value that is not a usable
	// argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory           uint32 `mapstructure:"memory_kb"`
	Time             uint32 `mapstructure:"time"`
	Parallelism      uint8  `mapstructure:"parallelism"`
	SaltLength       uint32 `mapstructure:"salt_length"`
	KeyLength        uint32 `mapstructure:"key_length"`
	MaxPasswordBytes int    `mapstructure:"max_password_bytes"`
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes and verifies credentials stored in the user table as PHC
// strings.
type Argon2 struct {
	config Config
	// decoy is verified against for unknown identities so that a login for
	// a missing account costs the same as a wrong password.
	decoy *phc
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" value.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p *phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

func (p *phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key))
}

// NewArgon2 validates cfg and prepares the decoy hash.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	a := &Argon2{config: cfg}
	decoy, err := a.newPHC("goguard-decoy-credential")
	if err != nil {
		return nil, err
	}
	a.decoy = decoy
	return a, nil
}

func (a *Argon2) newPHC(password string) (*phc, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	p := &phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         make([]byte, a.config.KeyLength),
	}
	p.key = p.derive(password)
	return p, nil
}

// Hash returns the PHC encoding of password. Bytes are hashed as given,
// without Unicode normalisation.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < MinPasswordBytes:
		return "", ErrPasswordTooShort
	case len(password) > a.config.MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}
	p, err := a.newPHC(password)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// Verify reports whether password matches encoded. The comparison is
// constant time; the cost parameters come from encoded, not from Config.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// Burn spends one verification on the decoy and discards the result.
func (a *Argon2) Burn(password string) {
	if len(password) > a.config.MaxPasswordBytes {
		password = password[:a.config.MaxPasswordBytes]
	}
	_ = a.decoy.derive(password)
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current Config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	weaker := a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		int(a.config.KeyLength) != len(p.key)
	return weaker, nil
}

func parsePHC(encoded string) (*phc, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: not argon2id", ErrMalformedHash)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || fields[0] != fmt.Sprintf("v=%d", version) {
		return nil, fmt.Errorf("%w: bad version %q", ErrMalformedHash, fields[0])
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	p := &phc{}
	if err := parseCost(fields[1], p); err != nil {
		return nil, err
	}

	var err error
	if p.salt, err = decodeB64(fields[2]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.key, err = decodeB64(fields[3]); err != nil || len(p.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return p, nil
}

// parseCost reads "m=..,t=..,p=.." in exactly that order.
func parseCost(field string, p *phc) error {
	var (
		m, t uint32
		par  uint8
	)
	if _, err := fmt.Sscanf(field, "m=%d,t=%d,p=%d", &m, &t, &par); err != nil {
		return fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, field)
	}
	if field != fmt.Sprintf("m=%d,t=%d,p=%d", m, t, par) {
		return fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, field)
	}
	if m < minMemoryKB || t < minTimeCost || par < minParallelism {
		return fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}
	p.memory, p.time, p.parallelism = m, t, par
	return nil
}

// decodeB64 accepts both padded and unpadded standard base64; older hashes
// were written padded.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
