package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"trackmybus/internal/types"
)

type updates struct {
	mu   sync.Mutex
	list []VehicleState
}

func (u *updates) add(st VehicleState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.list = append(u.list, st)
}

func (u *updates) len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.list)
}

func (u *updates) last() VehicleState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.list[len(u.list)-1]
}

func TestSubscribe_DeliversCurrentThenUpdates(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	if err := pub.Publish(ctx, "bus_1", pt(1, 1), 1000); err != nil {
		t.Fatal(err)
	}

	var got updates
	unsubscribe, err := sub.Subscribe(ctx, "bus_1", got.add)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	waitFor(t, "initial snapshot", func() bool { return got.len() == 1 })

	for i := 2; i <= 5; i++ {
		if err := pub.Publish(ctx, "bus_1", pt(float64(i), 1), int64(i*1000)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "all updates", func() bool { return got.len() == 5 })

	for i, st := range got.list {
		if pos, _ := st.Position(); pos.Lat != float64(i+1) {
			t.Errorf("update %d at %v, want lat %d", i, pos, i+1)
		}
		if len(st.Path) != i+1 {
			t.Errorf("update %d has %d path points", i, len(st.Path))
		}
	}
}

func TestSubscribe_SecondObserverGetsMirrorImmediately(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	var first updates
	unsub1, _ := sub.Subscribe(ctx, "bus_1", first.add)
	defer unsub1()
	_ = pub.Publish(ctx, "bus_1", pt(3, 3), 1000)
	waitFor(t, "first observer update", func() bool { return first.len() == 1 })

	var second updates
	unsub2, _ := sub.Subscribe(ctx, "bus_1", second.add)
	defer unsub2()
	if second.len() != 1 {
		t.Fatalf("second observer got %d deliveries during Subscribe, want 1", second.len())
	}
	if pos, _ := second.last().Position(); pos != pt(3, 3) {
		t.Errorf("mirror position = %v", pos)
	}
	if ch.Subscribers("bus_1") != 1 {
		t.Errorf("observers of one vehicle should share one channel subscription, got %d", ch.Subscribers("bus_1"))
	}
}

func TestSubscribe_MalformedRecordKeepsLastGood(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	var got updates
	unsubscribe, _ := sub.Subscribe(ctx, "bus_1", got.add)
	defer unsubscribe()

	_ = pub.Publish(ctx, "bus_1", pt(1, 1), 1000)
	waitFor(t, "good record", func() bool { return got.len() == 1 })

	ch.WriteRaw("bus_1", []byte(`{"location":{"latitude":"abc","longitude":1}}`))
	ch.WriteRaw("bus_1", []byte(`{"location":{"longitude":1}}`))
	_ = pub.Publish(ctx, "bus_1", pt(2, 2), 2000)
	waitFor(t, "second good record", func() bool { return got.len() == 2 })

	if pos, _ := got.last().Position(); pos != pt(2, 2) {
		t.Errorf("last delivered position = %v", pos)
	}
	st, err := sub.Latest(ctx, "bus_1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if pos, _ := st.Position(); pos != pt(2, 2) {
		t.Errorf("mirror position = %v", pos)
	}
}

func TestSubscribe_MalformedFirstRecordIsNeverDelivered(t *testing.T) {
	ch := NewMemoryChannel()
	ch.WriteRaw("bus_1", []byte(`{"location":{"latitude":null,"longitude":null}}`))
	sub := NewSubscriber(context.Background(), ch)

	var got updates
	unsubscribe, err := sub.Subscribe(context.Background(), "bus_1", got.add)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	time.Sleep(20 * time.Millisecond)
	if got.len() != 0 {
		t.Errorf("observer received %d updates from a malformed record", got.len())
	}
}

func TestSubscribe_DropsStaleRevision(t *testing.T) {
	ch := NewMemoryChannel()
	sub := NewSubscriber(context.Background(), ch)

	var got updates
	unsubscribe, _ := sub.Subscribe(context.Background(), "bus_1", got.add)
	defer unsubscribe()

	write := func(seq uint64, lat float64) {
		raw, _ := json.Marshal(Record{Location: &RecordLocation{Latitude: lat, Longitude: 0}, Seq: seq})
		ch.WriteRaw("bus_1", raw)
	}
	write(5, 5)
	write(3, 3)
	write(6, 6)
	waitFor(t, "revision 6", func() bool { return got.len() == 2 })

	if got.list[0].Seq != 5 || got.list[1].Seq != 6 {
		t.Errorf("delivered revisions %d,%d; want 5,6", got.list[0].Seq, got.list[1].Seq)
	}
}

func TestUnsubscribe_IdempotentAndClosesChannel(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	var a, b updates
	unsubA, _ := sub.Subscribe(ctx, "bus_1", a.add)
	unsubB, _ := sub.Subscribe(ctx, "bus_1", b.add)

	unsubA()
	unsubA()
	if sub.Observers("bus_1") != 1 || ch.Subscribers("bus_1") != 1 {
		t.Fatalf("after first unsubscribe: observers=%d channel=%d", sub.Observers("bus_1"), ch.Subscribers("bus_1"))
	}

	_ = pub.Publish(ctx, "bus_1", pt(1, 1), 1000)
	waitFor(t, "remaining observer update", func() bool { return b.len() == 1 })
	if a.len() != 0 {
		t.Errorf("released observer still received %d updates", a.len())
	}

	unsubB()
	unsubB()
	if sub.Observers("bus_1") != 0 || ch.Subscribers("bus_1") != 0 {
		t.Errorf("last unsubscribe left observers=%d channel=%d", sub.Observers("bus_1"), ch.Subscribers("bus_1"))
	}
}

func TestUnsubscribe_FromInsideCallback(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()
	_ = pub.Publish(ctx, "bus_1", pt(1, 1), 1000)

	done := make(chan struct{})
	handoff := make(chan func(), 1)
	unsubscribe, err := sub.Subscribe(ctx, "bus_1", func(VehicleState) {
		select {
		case u := <-handoff:
			u()
			close(done)
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	handoff <- unsubscribe

	_ = pub.Publish(ctx, "bus_1", pt(2, 2), 2000)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never unsubscribed")
	}
	waitFor(t, "channel closed", func() bool { return ch.Subscribers("bus_1") == 0 })
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	ch := NewMemoryChannel()
	sub := NewSubscriber(context.Background(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := sub.Subscribe(ctx, "bus_1", func(VehicleState) {}); err != nil {
		t.Fatal(err)
	}
	cancel()
	waitFor(t, "observer removal", func() bool { return sub.Observers("bus_1") == 0 })
}

func TestLatest(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewPublisher(ch)
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	if _, err := sub.Latest(ctx, "bus_1"); !errors.Is(err, ErrNoData) {
		t.Fatalf("Latest before any publish: err = %v, want ErrNoData", err)
	}

	_ = pub.Publish(ctx, "bus_1", pt(4, 4), 1000)
	st, err := sub.Latest(ctx, "bus_1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if pos, ok := st.Position(); !ok || pos != pt(4, 4) {
		t.Errorf("Latest position = %v", st.LastPosition)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	sub := NewSubscriber(context.Background(), NewMemoryChannel())
	if _, err := sub.Subscribe(context.Background(), "", func(VehicleState) {}); !errors.Is(err, ErrInvalidVehicle) {
		t.Errorf("err = %v, want ErrInvalidVehicle", err)
	}
	if _, err := sub.Subscribe(context.Background(), "bus_1", nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

// gatedChannel holds Subscribe for gated vehicles until their gate is closed,
// and fails the first Subscribe of vehicles listed in failOnce.
type gatedChannel struct {
	*MemoryChannel
	gates    map[types.ID]chan struct{}
	entered  chan types.ID
	mu       sync.Mutex
	failOnce map[types.ID]bool
}

func newGatedChannel() *gatedChannel {
	return &gatedChannel{
		MemoryChannel: NewMemoryChannel(),
		gates:         map[types.ID]chan struct{}{},
		entered:       make(chan types.ID, 8),
		failOnce:      map[types.ID]bool{},
	}
}

func (g *gatedChannel) Subscribe(ctx context.Context, id types.ID, deliver func([]byte)) (func(), error) {
	g.mu.Lock()
	fail := g.failOnce[id]
	delete(g.failOnce, id)
	g.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	if gate, ok := g.gates[id]; ok {
		g.entered <- id
		<-gate
	}
	return g.MemoryChannel.Subscribe(ctx, id, deliver)
}

func TestSubscribe_SlowVehicleDoesNotBlockOthers(t *testing.T) {
	ch := newGatedChannel()
	gate := make(chan struct{})
	ch.gates["bus_slow"] = gate
	sub := NewSubscriber(context.Background(), ch)
	ctx := context.Background()

	var slowA, slowB updates
	results := make(chan error, 2)
	go func() {
		_, err := sub.Subscribe(ctx, "bus_slow", slowA.add)
		results <- err
	}()
	<-ch.entered
	go func() {
		_, err := sub.Subscribe(ctx, "bus_slow", slowB.add)
		results <- err
	}()
	waitFor(t, "second slow observer", func() bool { return sub.Observers("bus_slow") == 2 })

	done := make(chan error, 1)
	go func() {
		unsubscribe, err := sub.Subscribe(ctx, "bus_fast", func(VehicleState) {})
		if err == nil {
			unsubscribe()
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("subscribe bus_fast: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribing to another vehicle waited on a pending subscription")
	}

	select {
	case <-results:
		t.Fatal("slow subscription returned before its channel subscription opened")
	default:
	}
	close(gate)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("slow subscribe: %v", err)
		}
	}
	if n := ch.Subscribers("bus_slow"); n != 1 {
		t.Errorf("channel subscriptions for bus_slow = %d, want 1", n)
	}

	pub := NewPublisher(ch)
	_ = pub.Publish(ctx, "bus_slow", pt(1, 1), 1000)
	waitFor(t, "both observers", func() bool { return slowA.len() == 1 && slowB.len() == 1 })
}

func TestSubscribe_FailedOpenCanBeRetried(t *testing.T) {
	ch := newGatedChannel()
	ch.failOnce["bus_1"] = true
	sub := NewSubscriber(context.Background(), ch)

	if _, err := sub.Subscribe(context.Background(), "bus_1", func(VehicleState) {}); err == nil {
		t.Fatal("expected the first subscribe to fail")
	}
	if n := sub.Observers("bus_1"); n != 0 {
		t.Errorf("observers after failure = %d, want 0", n)
	}

	unsubscribe, err := sub.Subscribe(context.Background(), "bus_1", func(VehicleState) {})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	unsubscribe()
	if n := ch.Subscribers("bus_1"); n != 0 {
		t.Errorf("channel subscriptions after unsubscribe = %d, want 0", n)
	}
}

func TestSubscribe_CancelWhileOpeningReleasesChannel(t *testing.T) {
	ch := newGatedChannel()
	gate := make(chan struct{})
	ch.gates["bus_1"] = gate
	sub := NewSubscriber(context.Background(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := sub.Subscribe(ctx, "bus_1", func(VehicleState) {})
		result <- err
	}()
	<-ch.entered

	// The opener itself is blocked in the channel; a second caller gives up.
	waiterCtx, waiterCancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := sub.Subscribe(waiterCtx, "bus_1", func(VehicleState) {})
		waiter <- err
	}()
	waitFor(t, "waiting observer", func() bool { return sub.Observers("bus_1") == 2 })
	waiterCancel()
	if err := <-waiter; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter err = %v, want context.Canceled", err)
	}

	cancel()
	close(gate)
	if err := <-result; !errors.Is(err, context.Canceled) && err != nil {
		t.Fatalf("opener err = %v", err)
	}
	waitFor(t, "observers gone", func() bool { return sub.Observers("bus_1") == 0 })
	waitFor(t, "channel subscription closed", func() bool { return ch.Subscribers("bus_1") == 0 })
}
