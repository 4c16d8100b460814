// Package redisstore implements [store.Store] on Redis.
//
// Records live in hashes keyed by token id. Group membership is a set per grp value and
// issue times are indexed in a sorted set per token type for cleanup. Revocations are
// fields of a single hash written with HSETNX, which makes revoking idempotent. Inserts,
// revocations, and rotations run as one Lua script each, so they apply atomically.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goToken/store"
)

const writeScript = `
local prefix = ARGV[1]
local n = tonumber(ARGV[2])
local m = tonumber(ARGV[3])
local now = ARGV[4]
local base = 5 + n

for i = 0, n - 1 do
  local id = ARGV[5 + i]
  if redis.call("EXISTS", prefix .. ":rec:" .. id) == 0 then
    return {1, id}
  end
end

for j = 0, m - 1 do
  local id = ARGV[base + j * 8]
  if redis.call("EXISTS", prefix .. ":rec:" .. id) == 1 then
    return {2, id}
  end
end

for j = 0, m - 1 do
  local o = base + j * 8
  local id = ARGV[o]
  redis.call("HSET", prefix .. ":rec:" .. id,
    "owner_id", ARGV[o + 1],
    "owner_kind", ARGV[o + 2],
    "type", ARGV[o + 3],
    "group", ARGV[o + 4],
    "payload", ARGV[o + 5],
    "created_at", ARGV[o + 6])
  if ARGV[o + 4] ~= "" then
    redis.call("SADD", prefix .. ":grp:" .. ARGV[o + 4], id)
  end
  redis.call("ZADD", prefix .. ":type:" .. ARGV[o + 3], ARGV[o + 7], id)
end

for i = 0, n - 1 do
  redis.call("HSETNX", prefix .. ":revoked", ARGV[5 + i], now)
end

return {0, ""}
`

const deleteScript = `
local prefix = ARGV[1]
local typeKey = prefix .. ":type:" .. ARGV[2]
local ids = redis.call("ZRANGEBYSCORE", typeKey, "-inf", ARGV[3])
for _, id in ipairs(ids) do
  local recKey = prefix .. ":rec:" .. id
  local grp = redis.call("HGET", recKey, "group")
  redis.call("DEL", recKey)
  if grp and grp ~= "" then
    redis.call("SREM", prefix .. ":grp:" .. grp, id)
  end
  redis.call("HDEL", prefix .. ":revoked", id)
  redis.call("ZREM", typeKey, id)
end
return #ids
`

var (
	writeLua  = redis.NewScript(writeScript)
	deleteLua = redis.NewScript(deleteScript)
)

const (
	writeStatusOK        int64 = 0
	writeStatusMissing   int64 = 1
	writeStatusDuplicate int64 = 2
)

// Store is a Redis backed token store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a store writing keys under prefix. A nil clock defaults to time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "gotoken"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: client, prefix: prefix, now: now}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":rec:" + id
}

func (s *Store) groupKey(group string) string {
	return s.prefix + ":grp:" + group
}

func (s *Store) revokedKey() string {
	return s.prefix + ":revoked"
}

func (s *Store) Insert(ctx context.Context, records ...store.Record) error {
	return s.write(ctx, nil, records)
}

func (s *Store) Revoke(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, ids, nil)
}

func (s *Store) Rotate(ctx context.Context, revoke []string, issue []store.Record) error {
	return s.write(ctx, revoke, issue)
}

func (s *Store) write(ctx context.Context, revoke []string, issue []store.Record) error {
	now := s.now()
	args := make([]any, 0, 4+len(revoke)+len(issue)*8)
	args = append(args, s.prefix, len(revoke), len(issue), strconv.FormatInt(now.UnixNano(), 10))
	for _, id := range revoke {
		args = append(args, id)
	}
	for _, r := range issue {
		if err := r.Validate(); err != nil {
			return err
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		args = append(args,
			r.ID,
			r.OwnerID,
			string(r.OwnerKind),
			r.Type,
			r.Group,
			string(r.Payload),
			strconv.FormatInt(created.UnixNano(), 10),
			strconv.FormatInt(created.UnixMilli(), 10),
		)
	}

	res, err := writeLua.Run(ctx, s.redis, []string{s.revokedKey()}, args...).Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("%w: unexpected script reply", store.ErrUnavailable)
	}
	status, _ := res[0].(int64)
	id, _ := res[1].(string)
	switch status {
	case writeStatusOK:
		return nil
	case writeStatusMissing:
		return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
	case writeStatusDuplicate:
		return fmt.Errorf("%w: %s", store.ErrDuplicateRecord, id)
	default:
		return fmt.Errorf("%w: unexpected script status %d", store.ErrUnavailable, status)
	}
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return store.Record{}, store.ErrRecordNotFound
	}
	return recordFromFields(id, fields)
}

func (s *Store) ListGroup(ctx context.Context, group string) ([]store.Record, error) {
	if group == "" {
		return nil, nil
	}
	ids, err := s.redis.SMembers(ctx, s.groupKey(group)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	out := make([]store.Record, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		r, err := recordFromFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	ok, err := s.redis.HExists(ctx, s.revokedKey(), id).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return ok, nil
}

func (s *Store) DeleteCreatedBefore(ctx context.Context, tokenType string, cutoff time.Time) (int64, error) {
	n, err := deleteLua.Run(ctx, s.redis, []string{s.revokedKey()},
		s.prefix, tokenType, strconv.FormatInt(cutoff.UnixMilli(), 10)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n, nil
}

func recordFromFields(id string, fields map[string]string) (store.Record, error) {
	nanos, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return store.Record{}, fmt.Errorf("%w: created_at: %v", store.ErrCorruptPayload, err)
	}
	return store.Record{
		ID:        id,
		OwnerID:   fields["owner_id"],
		OwnerKind: store.OwnerKind(fields["owner_kind"]),
		Type:      fields["type"],
		Group:     fields["group"],
		Payload:   []byte(fields["payload"]),
		CreatedAt: time.Unix(0, nanos),
	}, nil
}

var _ store.Store = (*Store)(nil)
