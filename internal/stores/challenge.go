package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersionV1 = 1

	// DefaultChallengeTTL is the lifetime of an issued code.
	DefaultChallengeTTL = 5 * time.Minute
)

var (
	ErrChallengeNotFound         = errors.New("challenge not found")
	ErrChallengeSecretMismatch   = errors.New("challenge secret mismatch")
	ErrChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET→compare→DEL on a challenge record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = expected issuedAt (unix nanos, decimal string)
// ARGV[3] = max attempts (int string)
//
// Layout: version(1) attempts(2 big-endian) issuedAt(8 big-endian) hash(32) ...
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "attempts_exceeded", "secret_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

if string.byte(data, 1) ~= 1 or string.len(data) < 43 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

-- A newer issuance replaced the record the caller inspected.
if string.sub(data, 4, 11) ~= ARGV[2] then
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)
local maxAttempts = tonumber(ARGV[3])

if string.sub(data, 12, 43) ~= ARGV[1] then
  attempts = attempts + 1
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='not_found'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='secret_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// Challenge is one outstanding step-up code bound to the network and device
// that requested it.
type Challenge struct {
	CodeHash    [32]byte
	IP          string
	Fingerprint string
	IssuedAt    time.Time
	Attempts    uint16
}

// ChallengeStore keeps at most one live challenge per identity.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "ach"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(identity string) string {
	return s.prefix + ":" + identity
}

// Save writes record at the identity slot, replacing any earlier challenge.
func (s *ChallengeStore) Save(ctx context.Context, identity string, record *Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(identity), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

// Get returns the live challenge for identity.
func (s *ChallengeStore) Get(ctx context.Context, identity string) (*Challenge, error) {
	raw, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	record, err := decodeChallenge(raw)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(identity)).Err()
		return nil, ErrChallengeNotFound
	}
	return record, nil
}

// Delete removes the challenge for identity. It reports whether one existed.
func (s *ChallengeStore) Delete(ctx context.Context, identity string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return n > 0, nil
}

// Consume compares providedHash against the challenge issued at issuedAt and
// deletes it on a match. A mismatch counts as a failed attempt; reaching
// maxAttempts deletes the challenge.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	identity string,
	issuedAt time.Time,
	providedHash [32]byte,
	maxAttempts int,
) (*Challenge, error) {
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(issuedAt.UnixNano()))

	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(identity)},
		string(providedHash[:]),
		string(stamp[:]),
		strconv.Itoa(maxAttempts),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrChallengeNotFound
		case "attempts_exceeded":
			return nil, ErrChallengeAttemptsExceeded
		case "secret_mismatch":
			return nil, ErrChallengeSecretMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrChallengeRedisUnavailable)
	}
	record, err := decodeChallenge([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	// Lua string equality is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrChallengeSecretMismatch
	}
	return record, nil
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	if record == nil {
		return nil, errors.New("challenge record is nil")
	}
	if len(record.IP) > 65535 || len(record.Fingerprint) > 65535 {
		return nil, errors.New("challenge record field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixNano()); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])
	for _, s := range []string{record.IP, record.Fingerprint} {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &Challenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	var issuedAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	record.IssuedAt = time.Unix(0, issuedAt)
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	readString := func() (string, error) {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return "", err
		}
		return string(b), nil
	}
	if record.IP, err = readString(); err != nil {
		return nil, err
	}
	if record.Fingerprint, err = readString(); err != nil {
		return nil, err
	}
	return record, nil
}
