package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"call-signaling/internal/calls"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix = "call:status:"
	deviceKeyPrefix = "call:device:"
)

var setIfFreeScript = redis.NewScript(`
-- KEYS[1] = status key
-- ARGV[1] = call id being installed
-- ARGV[2] = encoded status
-- ARGV[3] = ttl_ms
--
-- Returns {1, status} when stored, {0, current} when another call holds the user.
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and decoded['callId'] ~= ARGV[1] then
    return {0, cur}
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return {1, ARGV[2]}
`)

var clearIfScript = redis.NewScript(`
-- KEYS[1] = status key
-- ARGV[1] = call id that must still be held
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local ok, decoded = pcall(cjson.decode, cur)
if ok and decoded['callId'] ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisRegistry keeps statuses as JSON strings. The TTL is a safety net for
// statuses orphaned by a crashed process; normal flows clear them explicitly.
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) (*RedisRegistry, error) {
	if rdb == nil {
		return nil, errors.New("presence: redis client is nil")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRegistry{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisRegistry) Get(ctx context.Context, userID string) (calls.GlobalStatus, error) {
	raw, err := r.rdb.Get(ctx, statusKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return calls.GlobalStatus{}, nil
	}
	if err != nil {
		return calls.GlobalStatus{}, err
	}
	return decodeStatus(raw)
}

func (r *RedisRegistry) Set(ctx context.Context, userID string, st calls.GlobalStatus) error {
	if st.IsEmpty() {
		return r.Clear(ctx, userID)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, statusKeyPrefix+userID, raw, r.ttl).Err()
}

func (r *RedisRegistry) Clear(ctx context.Context, userID string) error {
	return r.rdb.Del(ctx, statusKeyPrefix+userID).Err()
}

func (r *RedisRegistry) ClearIf(ctx context.Context, userID, callID string) (bool, error) {
	n, err := clearIfScript.Run(ctx, r.rdb, []string{statusKeyPrefix + userID}, callID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisRegistry) SetIfFree(ctx context.Context, userID string, st calls.GlobalStatus) (calls.GlobalStatus, bool, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return calls.GlobalStatus{}, false, err
	}
	res, err := setIfFreeScript.Run(ctx, r.rdb, []string{statusKeyPrefix + userID}, st.CallID, raw, r.ttl.Milliseconds()).Slice()
	if err != nil {
		return calls.GlobalStatus{}, false, err
	}
	if len(res) != 2 {
		return calls.GlobalStatus{}, false, fmt.Errorf("presence: unexpected script reply %v", res)
	}
	stored, _ := res[0].(int64)
	cur, _ := res[1].(string)
	if stored == 1 {
		return st, true, nil
	}
	held, err := decodeStatus([]byte(cur))
	if err != nil {
		return calls.GlobalStatus{}, false, err
	}
	return held, false, nil
}

func decodeStatus(raw []byte) (calls.GlobalStatus, error) {
	var st calls.GlobalStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return calls.GlobalStatus{}, fmt.Errorf("presence: decode status: %w", err)
	}
	return st, nil
}

var deviceOnlineScript = redis.NewScript(`
-- KEYS[1] = device connection counter
-- ARGV[1] = ttl_ms
local current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return current
`)

var deviceOfflineScript = redis.NewScript(`
-- KEYS[1] = device connection counter
-- Decrement, and delete if <= 0
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisDevices counts live sockets per device across every API process.
// Counters expire unless refreshed by Touch, so a crashed process cannot leave a device online forever.
type RedisDevices struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDevices(rdb *redis.Client, ttl time.Duration) (*RedisDevices, error) {
	if rdb == nil {
		return nil, errors.New("presence: redis client is nil")
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisDevices{rdb: rdb, ttl: ttl}, nil
}

func (d *RedisDevices) MarkOnline(ctx context.Context, userID, deviceID string) error {
	if deviceID == "" {
		return errors.New("presence: device id is required")
	}
	_, err := deviceOnlineScript.Run(ctx, d.rdb, []string{deviceKeyPrefix + deviceID}, d.ttl.Milliseconds()).Result()
	return err
}

func (d *RedisDevices) MarkOffline(ctx context.Context, userID, deviceID string) error {
	if deviceID == "" {
		return errors.New("presence: device id is required")
	}
	_, err := deviceOfflineScript.Run(ctx, d.rdb, []string{deviceKeyPrefix + deviceID}).Result()
	return err
}

// Touch extends the device counter TTL; call it on every client heartbeat.
func (d *RedisDevices) Touch(ctx context.Context, deviceID string) error {
	return d.rdb.PExpire(ctx, deviceKeyPrefix+deviceID, d.ttl).Err()
}

func (d *RedisDevices) IsOnline(ctx context.Context, deviceID string) (bool, error) {
	n, err := d.rdb.Get(ctx, deviceKeyPrefix+deviceID).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
