// README: Channel backed by Redis: SET keeps the latest record, PUBLISH fans it out.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"trackmybus/internal/types"
)

type RedisChannel struct {
	rdb    *redis.Client
	prefix string
}

var _ Channel = (*RedisChannel)(nil)

func NewRedisChannel(rdb *redis.Client) *RedisChannel {
	return &RedisChannel{rdb: rdb, prefix: "tmb:vehicle:"}
}

func (c *RedisChannel) key(id types.ID) string   { return c.prefix + string(id) }
func (c *RedisChannel) topic(id types.ID) string { return c.prefix + string(id) + ":updates" }

// Write stores and publishes the record in one MULTI/EXEC so that a reader
// never observes a published record that is not yet readable.
func (c *RedisChannel) Write(ctx context.Context, vehicleID types.ID, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.key(vehicleID), data, 0)
	pipe.Publish(ctx, c.topic(vehicleID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %s: %w", vehicleID, err)
	}
	return nil
}

func (c *RedisChannel) Read(ctx context.Context, vehicleID types.ID) ([]byte, error) {
	data, err := c.rdb.Get(ctx, c.key(vehicleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", vehicleID, err)
	}
	return data, nil
}

// Subscribe confirms the SUBSCRIBE before reading the current record, so no
// write can fall between the snapshot and the live feed.
func (c *RedisChannel) Subscribe(ctx context.Context, vehicleID types.ID, deliver func([]byte)) (func(), error) {
	ps := c.rdb.Subscribe(ctx, c.topic(vehicleID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", vehicleID, err)
	}
	cur, err := c.Read(ctx, vehicleID)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	mb := newMailbox(deliver)
	if cur != nil {
		mb.push(cur)
	}
	go mb.run(subCtx)

	go func() {
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				mb.push([]byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			mb.close()
			cancel()
		})
	}, nil
}
