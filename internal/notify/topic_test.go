package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishStampsAndDelivers(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	sub := topic.Subscribe(4)
	defer sub.Close()

	topic.Publish(Event{Type: BookingCreated, BookingID: 7})

	select {
	case event := <-sub.C():
		assert.Equal(t, BookingCreated, event.Type)
		assert.Equal(t, int64(7), event.BookingID)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	sub := topic.Subscribe(2)
	defer sub.Close()

	for i := int64(1); i <= 5; i++ {
		topic.Publish(Event{Type: BookingChanged, BookingID: i})
	}

	require.Equal(t, uint64(3), sub.Dropped())
	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, int64(4), first.BookingID)
	assert.Equal(t, int64(5), second.BookingID)
}

func TestPublishDoesNotBlockOnIdleSubscriber(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	idle := topic.Subscribe(1)
	defer idle.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			topic.Publish(Event{Type: BookingChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	sub := topic.Subscribe(1)
	require.Equal(t, 1, topic.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, topic.Subscribers())

	_, ok := <-sub.C()
	assert.False(t, ok, "channel must be closed")

	topic.Publish(Event{Type: BookingChanged})
}

func TestConcurrentPublishAndClose(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sub := topic.Subscribe(2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				topic.Publish(Event{Type: BookingChanged})
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, topic.Subscribers())
}

type fakeRedis struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestRedisRelayForwardsEvents(t *testing.T) {
	t.Parallel()

	topic := NewTopic()
	client := &fakeRedis{}
	relay := NewRedisRelay(client, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx, topic)
		close(done)
	}()

	require.Eventually(t, func() bool { return topic.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	topic.Publish(Event{Type: BookingCreated, BookingID: 42, Status: "confirmed"})
	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, DefaultRelayChannel, client.channel)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.messages[0], &decoded))
	assert.Equal(t, int64(42), decoded.BookingID)
	assert.Equal(t, BookingCreated, decoded.Type)
}
