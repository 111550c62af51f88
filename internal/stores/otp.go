package stores

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpRecordVersionV1 = 1

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPMismatch         = errors.New("otp secret mismatch")
	ErrOTPLocked           = errors.New("otp record locked")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// createOTPLua atomically replaces the record for one (flow, email) key,
// carrying forward the staged pending-user snapshot from any prior live
// record when the new one arrives without its own. Replacement through a
// single script means two concurrent creates serialize in Redis and exactly
// one record is ever live per key.
//
// KEYS[1] = record key
// ARGV[1] = new record JSON
// ARGV[2] = ttl in milliseconds
var createOTPLua = redis.NewScript(`
local rec = cjson.decode(ARGV[1])
if rec.pending == nil then
  local old = redis.call('GET', KEYS[1])
  if old then
    local prev = cjson.decode(old)
    if prev.pending ~= nil then
      rec.pending = prev.pending
    end
  end
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ARGV[2])
return 1
`)

// consumeOTPLua performs GET, validate, DEL-or-rewrite as one atomic step.
// The attempt counter increment is therefore a true read-modify-write;
// concurrent wrong guesses cannot race past the threshold.
//
// Check order matters: a live lock answers before the expiry check so that
// lockout can outlive the record's own TTL window. When the lock is applied
// the key's physical TTL is extended through lockedUntil; once the lock
// elapses the expiry check reclaims the record.
//
// KEYS[1] = record key
// ARGV[1] = provided secret hash (hex)
// ARGV[2] = current unix seconds
// ARGV[3] = max attempts
// ARGV[4] = lockout duration in seconds
// ARGV[5] = "token" to match the verification token, anything else the code
//
// Returns {status, payload}:
//
//	{'ok', <record json>} | {'not_found'} | {'locked', <seconds remaining>}
//	{'retry', <attempts remaining>}
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {'not_found'}
end

local rec = cjson.decode(data)
local now = tonumber(ARGV[2])

if rec.locked and now < rec.lockedUntil then
  return {'locked', rec.lockedUntil - now}
end

if now >= rec.expiresAt then
  redis.call('DEL', KEYS[1])
  return {'not_found'}
end

local stored = rec.codeHash
if ARGV[5] == 'token' then
  stored = rec.tokenHash
end

if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {'ok', data}
end

rec.attempts = rec.attempts + 1
local maxAttempts = tonumber(ARGV[3])
if rec.attempts >= maxAttempts then
  rec.locked = true
  rec.lockedUntil = now + tonumber(ARGV[4])
  local keepUntil = rec.lockedUntil
  if rec.expiresAt > keepUntil then
    keepUntil = rec.expiresAt
  end
  redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', (keepUntil - now) * 1000)
  return {'locked', rec.lockedUntil - now}
end

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return {'not_found'}
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ttlMs)
return {'retry', maxAttempts - rec.attempts}
`)

// StagedUser is the pending-registration snapshot embedded in the record.
type StagedUser struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
}

// OTPRecord is the stored shape of one live code. Only digests of the code
// and verification token are kept.
type OTPRecord struct {
	Version     int         `json:"v"`
	Email       string      `json:"email"`
	Flow        string      `json:"flow"`
	CodeHash    string      `json:"codeHash"`
	TokenHash   string      `json:"tokenHash"`
	Pending     *StagedUser `json:"pending,omitempty"`
	Attempts    int         `json:"attempts"`
	Locked      bool        `json:"locked"`
	LockedUntil int64       `json:"lockedUntil"`
	ExpiresAt   int64       `json:"expiresAt"`
}

// ConsumeResult carries failure metadata alongside the sentinel error:
// Remaining on ErrOTPMismatch, RetryAfter on ErrOTPLocked, Record on success.
type ConsumeResult struct {
	Record     *OTPRecord
	Remaining  int
	RetryAfter time.Duration
}

// OTPStore holds one record per (flow, email) pair in Redis. Uniqueness of
// the live record is a property of the keying, not of a delete-then-insert
// sequence.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "idv"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *OTPStore) key(flow, email string) string {
	return s.prefix + ":otp:" + flow + ":" + email
}

// Create stages a new record for (flow, email), atomically replacing any
// prior one. A record arriving without a pending snapshot inherits the
// snapshot of the record it replaces, which is what lets a resend keep the
// staged registration data alive.
func (s *OTPStore) Create(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	record.Version = otpRecordVersionV1
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = createOTPLua.Run(ctx, s.redis,
		[]string{s.key(record.Flow, record.Email)},
		string(encoded),
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Consume verifies providedHash against the live record for (flow, email)
// and deletes it on match (one-time use). byToken selects the
// verification-token digest instead of the code digest; lockout and
// consumption semantics are identical on both paths.
func (s *OTPStore) Consume(
	ctx context.Context,
	flow, email, providedHash string,
	byToken bool,
	maxAttempts int,
	lockout time.Duration,
) (ConsumeResult, error) {
	matchArg := "code"
	if byToken {
		matchArg = "token"
	}

	raw, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{s.key(flow, email)},
		providedHash,
		s.now().Unix(),
		maxAttempts,
		int64(lockout.Seconds()),
		matchArg,
	).Result()
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return ConsumeResult{}, fmt.Errorf("%w: unexpected lua result shape", ErrOTPRedisUnavailable)
	}

	status, _ := reply[0].(string)
	switch status {
	case "not_found":
		return ConsumeResult{}, ErrOTPNotFound

	case "locked":
		seconds, ok := replyInt(reply, 1)
		if !ok {
			return ConsumeResult{}, fmt.Errorf("%w: malformed locked reply", ErrOTPRedisUnavailable)
		}
		return ConsumeResult{RetryAfter: time.Duration(seconds) * time.Second}, ErrOTPLocked

	case "retry":
		remaining, ok := replyInt(reply, 1)
		if !ok {
			return ConsumeResult{}, fmt.Errorf("%w: malformed retry reply", ErrOTPRedisUnavailable)
		}
		return ConsumeResult{Remaining: int(remaining)}, ErrOTPMismatch

	case "ok":
		data, _ := reply[1].(string)
		record, decErr := decodeOTPRecord([]byte(data))
		if decErr != nil {
			return ConsumeResult{}, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, decErr)
		}

		stored := record.CodeHash
		if byToken {
			stored = record.TokenHash
		}
		// Lua's string compare is not constant-time; compare again here
		// before trusting the match.
		if subtle.ConstantTimeCompare([]byte(stored), []byte(providedHash)) != 1 {
			return ConsumeResult{}, ErrOTPMismatch
		}
		return ConsumeResult{Record: record}, nil

	default:
		return ConsumeResult{}, fmt.Errorf("%w: unknown lua status %q", ErrOTPRedisUnavailable, status)
	}
}

func replyInt(reply []interface{}, idx int) (int64, bool) {
	if len(reply) <= idx {
		return 0, false
	}
	n, ok := reply[idx].(int64)
	return n, ok
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	var record OTPRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if record.Version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}
	return &record, nil
}
