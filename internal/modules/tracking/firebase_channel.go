// README: Channel backed by Firebase Realtime Database under /buses/{vehicleID}.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"firebase.google.com/go/v4/db"

	"trackmybus/internal/types"
)

const defaultPollInterval = time.Second

// FirebaseChannel writes full records with Set. The Admin SDK has no push
// listener, so subscriptions poll the node with ETag-conditional reads and
// deliver only when the node changed.
type FirebaseChannel struct {
	client   *db.Client
	root     string
	interval time.Duration
}

var _ Channel = (*FirebaseChannel)(nil)

func NewFirebaseChannel(client *db.Client, poll time.Duration) *FirebaseChannel {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &FirebaseChannel{client: client, root: "buses", interval: poll}
}

func (c *FirebaseChannel) ref(id types.ID) *db.Ref {
	return c.client.NewRef(c.root).Child(string(id))
}

func (c *FirebaseChannel) Write(ctx context.Context, vehicleID types.ID, rec Record) error {
	if err := c.ref(vehicleID).Set(ctx, rec); err != nil {
		return fmt.Errorf("rtdb set %s: %w", vehicleID, err)
	}
	return nil
}

func (c *FirebaseChannel) Read(ctx context.Context, vehicleID types.ID) ([]byte, error) {
	var raw json.RawMessage
	if err := c.ref(vehicleID).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("rtdb get %s: %w", vehicleID, err)
	}
	return nonNull(raw), nil
}

func (c *FirebaseChannel) Subscribe(ctx context.Context, vehicleID types.ID, deliver func([]byte)) (func(), error) {
	ref := c.ref(vehicleID)

	var raw json.RawMessage
	etag, err := ref.GetWithETag(ctx, &raw)
	if err != nil {
		return nil, fmt.Errorf("rtdb get %s: %w", vehicleID, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	mb := newMailbox(deliver)
	if cur := nonNull(raw); cur != nil {
		mb.push(cur)
	}
	go mb.run(subCtx)
	go c.watch(subCtx, ref, vehicleID, etag, mb)

	var once sync.Once
	return func() {
		once.Do(func() {
			mb.close()
			cancel()
		})
	}, nil
}

func (c *FirebaseChannel) watch(ctx context.Context, ref *db.Ref, vehicleID types.ID, etag string, mb *mailbox) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var raw json.RawMessage
		changed, newTag, err := ref.GetIfChanged(ctx, etag, &raw)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("rtdb poll failed", "vehicle", vehicleID, "err", err)
			}
			continue
		}
		if !changed {
			continue
		}
		etag = newTag
		if cur := nonNull(raw); cur != nil {
			mb.push(cur)
		}
	}
}

func nonNull(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
