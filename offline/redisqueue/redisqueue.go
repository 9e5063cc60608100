// Package redisqueue persists the offline mutation queue in Redis so queued
// writes survive a process restart. The queue blob lives under one
// namespaced key; Redis is the durability boundary, not a coordinator.
// Run one engine instance per namespace.
package redisqueue

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/queryflow/offline"
)

var ErrNilClient = errors.New("redisqueue: nil client")

type Store struct {
	rdb goredis.UniversalClient
	key string
}

var _ offline.Store = (*Store)(nil)

// New creates a Redis-backed queue store. namespace isolates engines sharing
// one Redis (e.g. "app:prod").
func New(client goredis.UniversalClient, namespace string) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: client, key: "queue:" + namespace}, nil
}

func (s *Store) Save(ctx context.Context, blob []byte) error {
	return s.rdb.Set(ctx, s.key, blob, 0).Err()
}

func (s *Store) Load(ctx context.Context) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
