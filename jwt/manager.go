package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm for access tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Config configures a [Manager]. VerifyKeys enables key rotation by kid.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	// Clock overrides time.Now for issuance and validation.
	Clock func() time.Time
}

// Manager signs and verifies access tokens. Keys are decoded once in
// [NewManager]; the Manager is immutable and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	// byKid is set when VerifyKeys is configured; tokens must then carry
	// a kid found here.
	byKid map[string]any
}

// AccessClaims are the claims of an access token. SID is empty on tokens
// minted before sessions were tracked; such tokens are legacy credentials.
type AccessClaims struct {
	UID  string `json:"uid"`
	SID  string `json:"sid,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsLegacy reports whether the token predates session tracking.
func (c *AccessClaims) IsLegacy() bool {
	return c.SID == ""
}

// NewManager validates cfg and resolves its keys.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey, m.verifyKey = cfg.PrivateKey, cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.verifyKey, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := m.verifyKeyFrom(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			m.byKid[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := m.byKid[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	}
	return m, nil
}

// CreateAccess signs an access token for uid. An empty sid produces a
// session-less token, which is only useful for exercising legacy migration.
func (j *Manager) CreateAccess(uid, sid, role string) (string, error) {
	if uid == "" {
		return "", errors.New("access token requires uid")
	}
	now := j.config.Clock()
	claims := AccessClaims{
		UID:  uid,
		SID:  sid,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	if j.signKey == nil {
		return "", errors.New("manager has no signing key")
	}
	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.signKey)
}

// AccessTTL is the configured lifetime of issued access tokens.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// ParseAccess verifies signature, algorithm, kid, issuer, audience and
// expiry, and returns the claims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	token, err := j.parser().ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFor)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(j.config.Clock().Add(j.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}

func (j *Manager) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithTimeFunc(j.config.Clock),
		jwt.WithLeeway(j.config.Leeway),
	}
	if j.config.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.config.Audience))
	}
	return jwt.NewParser(opts...)
}

func (j *Manager) verifyKeyFrom(raw []byte) (any, error) {
	if j.config.SigningMethod == MethodHS256 {
		return raw, nil
	}
	return parseEdPublicKey(raw)
}

// keyFor picks the verification key for t: by kid when a key set is
// configured, otherwise the single configured key.
func (j *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	if j.byKid != nil {
		key, ok := j.byKid[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if j.config.KeyID != "" && kid != j.config.KeyID {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	if j.verifyKey == nil {
		return nil, errors.New("no verification key configured")
	}
	return j.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
