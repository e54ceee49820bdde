package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "remindbot/pkg/logx"
)

const (
	redisDefaultPrefix = "remindbot"
	redisFireLogCap    = 1000
)

// redisStore keeps recipients in a set and the fire log in a capped list.
//
// Keys:
//   - <prefix>:recipients (SET of chat ids)
//   - <prefix>:fires      (LIST of FireRecord JSON, newest first)
type redisStore struct {
	rdb    *redis.Client
	log    logx.Logger
	prefix string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = redisDefaultPrefix
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisStore{rdb: rdb, log: log, prefix: prefix}, nil
}

func (s *redisStore) key(name string) string { return s.prefix + ":" + name }

func (s *redisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *redisStore) LoadRecipients(ctx context.Context) ([]string, error) {
	out, err := s.rdb.SMembers(ctx, s.key("recipients")).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *redisStore) PutRecipient(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return s.rdb.SAdd(ctx, s.key("recipients"), id).Err()
}

func (s *redisStore) DeleteRecipient(ctx context.Context, id string) error {
	return s.rdb.SRem(ctx, s.key("recipients"), id).Err()
}

func (s *redisStore) RecordFire(ctx context.Context, r FireRecord) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	k := s.key("fires")
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, k, b)
		p.LTrim(ctx, k, 0, redisFireLogCap-1)
		return nil
	})
	return err
}
