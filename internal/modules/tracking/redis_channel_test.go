package tracking

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"trackmybus/internal/types"
)

func TestRedisChannel_PublishSubscribe(t *testing.T) {
	redisAddr := os.Getenv("TMB_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("TMB_REDIS_ADDR not set; skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx := context.Background()
	ch := NewRedisChannel(rdb)
	id := types.ID(fmt.Sprintf("bus_test_%d", time.Now().UnixNano()))
	defer rdb.Del(ctx, ch.key(id))

	if raw, err := ch.Read(ctx, id); err != nil || raw != nil {
		t.Fatalf("Read of unknown vehicle = %q, %v", raw, err)
	}

	pub := NewPublisher(ch)
	sub := NewSubscriber(ctx, ch)

	if err := pub.Publish(ctx, id, pt(10.1583, 76.1784), 1000); err != nil {
		t.Fatal(err)
	}

	var got updates
	unsubscribe, err := sub.Subscribe(ctx, id, got.add)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()
	waitFor(t, "initial snapshot", func() bool { return got.len() >= 1 })

	if err := pub.Publish(ctx, id, pt(10.1601, 76.1802), 2000); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "published update", func() bool {
		return got.len() >= 2 && len(got.last().Path) == 2
	})

	st, err := sub.Latest(ctx, id)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if st.Seq != 2 {
		t.Errorf("Seq = %d, want 2", st.Seq)
	}
}
