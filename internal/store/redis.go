package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const maxTxRetries = 5

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func changeChannel(path string) string {
	return "store:" + path
}

func (s *RedisStore) Get(ctx context.Context, path string, dst any) error {
	raw, err := s.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, path)
			pipe.Publish(ctx, changeChannel(path), "")
			return nil
		})
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, path, data, 0)
		pipe.Publish(ctx, changeChannel(path), data)
		return nil
	})
	return err
}

func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.merge(ctx, path, fields, nil)
}

func (s *RedisStore) PushAndUpdate(ctx context.Context, listPath string, value any, docPath string, fields map[string]any) error {
	item, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", listPath, err)
	}
	return s.merge(ctx, docPath, fields, func(pipe redis.Pipeliner) {
		pipe.RPush(ctx, listPath, item)
		pipe.Publish(ctx, changeChannel(listPath), item)
	})
}

// merge runs a WATCH/MULTI read-modify-write of the document at path. extra queues
// more commands into the same MULTI.
func (s *RedisStore) merge(ctx context.Context, path string, fields map[string]any, extra func(redis.Pipeliner)) error {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", path, k, err)
		}
		encoded[k] = data
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, path).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		doc := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		for k, v := range encoded {
			doc[k] = v
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if extra != nil {
				extra(pipe)
			}
			pipe.Set(ctx, path, data, 0)
			pipe.Publish(ctx, changeChannel(path), data)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, path)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", path, redis.TxFailedErr)
}

func (s *RedisStore) Push(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, path, data)
		pipe.Publish(ctx, changeChannel(path), data)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, path string) ([]json.RawMessage, error) {
	items, err := s.client.LRange(ctx, path, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

func (s *RedisStore) Children(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	out := map[string]json.RawMessage{}

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, path, old, new string) (bool, error) {
	swapped := false
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, path).Result()
		if errors.Is(err, redis.Nil) {
			cur = ""
		} else if err != nil {
			return err
		}
		if cur != old {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if new == "" {
				pipe.Del(ctx, path)
			} else {
				pipe.Set(ctx, path, new, 0)
			}
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}

	err := s.client.Watch(ctx, txf, path)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer got there first.
		return false, nil
	}
	return swapped, err
}

// GetString reads a raw string value such as the one written by CompareAndSwap.
func (s *RedisStore) GetString(ctx context.Context, path string) (string, error) {
	v, err := s.client.Get(ctx, path).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisStore) Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan json.RawMessage, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		raw, err := s.client.Get(ctx, path).Bytes()
		if err == nil {
			if !deliver(ctx, out, raw) {
				return
			}
		} else if !errors.Is(err, redis.Nil) {
			log.WithField("path", path).Warnf("store subscribe initial read: %v", err)
		}

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var value json.RawMessage
				if msg.Payload != "" {
					value = json.RawMessage(msg.Payload)
				}
				if !deliver(ctx, out, value) {
					return
				}
			}
		}
	}()
	return out, nil
}

func deliver(ctx context.Context, out chan<- json.RawMessage, v json.RawMessage) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
