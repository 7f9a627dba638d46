package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gotest.tools/v3/assert"
)

type cleanCall struct {
	userID     primitive.ObjectID
	productIDs []primitive.ObjectID
}

type mockCleaner struct {
	m     sync.Mutex
	calls []cleanCall
	err   error
	// failures makes the first n calls return err; zero means always.
	failures int
}

func (c *mockCleaner) RemoveOrderedLines(_ context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.calls = append(c.calls, cleanCall{userID, productIDs})
	if c.failures > 0 && len(c.calls) > c.failures {
		return nil
	}
	return c.err
}

func (c *mockCleaner) callCount() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.calls)
}

type fakeReader struct {
	m         sync.Mutex
	messages  []kafkaGo.Message
	committed []int64
	fetchErr  error
	fetches   int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	r.m.Lock()
	r.fetches++
	if r.fetchErr != nil {
		r.m.Unlock()
		return kafkaGo.Message{}, r.fetchErr
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.m.Unlock()
		return m, nil
	}
	r.m.Unlock()

	<-ctx.Done()
	return kafkaGo.Message{}, ctx.Err()
}

func (r *fakeReader) fetchCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.fetches
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]int64(nil), r.committed...)
}

func testPoller(cleaner CartCleaner) *Poller {
	return &Poller{
		carts:      cleaner,
		reader:     &fakeReader{},
		log:        logger.NewWithWriter("error", io.Discard),
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}
}

func orderPlacedJSON(t *testing.T, userID string, productIDs ...string) []byte {
	ev := events.OrderPlaced{EventID: "e-1", OrderID: "o-1", UserID: userID, PlacedAt: time.Now()}
	for _, id := range productIDs {
		ev.Items = append(ev.Items, events.OrderPlacedItem{ProductID: id, Quantity: 1})
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return raw
}

func TestHandle_RemovesOrderedLines(t *testing.T) {
	cleaner := &mockCleaner{}
	p := testPoller(cleaner)
	user, a, b := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	err := p.handle(context.Background(), orderPlacedJSON(t, user.Hex(), a.Hex(), b.Hex()))
	assert.NilError(t, err)

	assert.Equal(t, 1, cleaner.callCount())
	assert.Equal(t, user, cleaner.calls[0].userID)
	assert.DeepEqual(t, []primitive.ObjectID{a, b}, cleaner.calls[0].productIDs)
}

func TestHandle_MalformedEvents(t *testing.T) {
	cleaner := &mockCleaner{}
	p := testPoller(cleaner)

	assert.ErrorContains(t, p.handle(context.Background(), []byte("{not json")), "error parsing message")
	assert.ErrorContains(t, p.handle(context.Background(), orderPlacedJSON(t, "123")), "invalid user_id")
	err := p.handle(context.Background(), orderPlacedJSON(t, primitive.NewObjectID().Hex(), "zzz"))
	assert.ErrorContains(t, err, "invalid product_id")
	assert.Assert(t, errors.Is(err, errMalformed))
	assert.Equal(t, 0, cleaner.callCount())
}

func TestHandle_CleanerError(t *testing.T) {
	cleaner := &mockCleaner{err: errors.New("mongo timeout")}
	p := testPoller(cleaner)

	err := p.handle(context.Background(), orderPlacedJSON(t, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex()))
	assert.ErrorContains(t, err, "mongo timeout")
	assert.Assert(t, !errors.Is(err, errMalformed))
}

func TestProcessNext_CommitsAfterCleanup(t *testing.T) {
	cleaner := &mockCleaner{}
	p := testPoller(cleaner)
	reader := &fakeReader{messages: []kafkaGo.Message{
		{Offset: 7, Value: orderPlacedJSON(t, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())},
	}}
	p.reader = reader

	assert.NilError(t, p.processNext(context.Background()))
	assert.Equal(t, 1, cleaner.callCount())
	assert.DeepEqual(t, []int64{7}, reader.committedOffsets())
}

func TestProcessNext_CommitsMalformedWithoutCleanup(t *testing.T) {
	cleaner := &mockCleaner{}
	p := testPoller(cleaner)
	reader := &fakeReader{messages: []kafkaGo.Message{{Offset: 3, Value: []byte("{not json")}}}
	p.reader = reader

	assert.NilError(t, p.processNext(context.Background()))
	assert.Equal(t, 0, cleaner.callCount())
	assert.DeepEqual(t, []int64{3}, reader.committedOffsets())
}

func TestProcessNext_RetriesTransientFailureBeforeCommit(t *testing.T) {
	cleaner := &mockCleaner{err: errors.New("mongo unavailable"), failures: 2}
	p := testPoller(cleaner)
	reader := &fakeReader{messages: []kafkaGo.Message{
		{Offset: 11, Value: orderPlacedJSON(t, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())},
	}}
	p.reader = reader

	assert.NilError(t, p.processNext(context.Background()))
	assert.Equal(t, 3, cleaner.callCount())
	assert.DeepEqual(t, []int64{11}, reader.committedOffsets())
}

func TestProcessNext_FailedCleanupIsNotCommitted(t *testing.T) {
	cleaner := &mockCleaner{err: errors.New("mongo unavailable")}
	p := testPoller(cleaner)
	reader := &fakeReader{messages: []kafkaGo.Message{
		{Offset: 5, Value: orderPlacedJSON(t, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())},
	}}
	p.reader = reader

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.processNext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Assert(t, cleaner.callCount() > 1)
	assert.Equal(t, 0, len(reader.committedOffsets()))
}

func TestRun_BacksOffOnFetchErrors(t *testing.T) {
	p := testPoller(&mockCleaner{})
	p.minBackoff = 10 * time.Millisecond
	p.maxBackoff = 10 * time.Millisecond
	reader := &fakeReader{fetchErr: errors.New("broker unreachable")}
	p.reader = reader

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Assert(t, reader.fetchCount() <= 5, "fetched %d times", reader.fetchCount())
}

func TestBackoff_DoublesUpToMax(t *testing.T) {
	p := &Poller{minBackoff: 100 * time.Millisecond, maxBackoff: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.backoff(3))
	assert.Equal(t, time.Second, p.backoff(4))
	assert.Equal(t, time.Second, p.backoff(40))
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	createTopic(t, brokers, events.TopicOrderPlaced)

	cleaner := &mockCleaner{}
	p := NewPoller(cleaner, logger.NewWithWriter("error", io.Discard), brokers)
	defer p.Close()

	pub := events.NewKafkaPublisher(brokers)
	defer pub.Close()

	order := events.OrderPlaced{
		EventID:  "e-42",
		OrderID:  primitive.NewObjectID().Hex(),
		UserID:   primitive.NewObjectID().Hex(),
		Items:    []events.OrderPlacedItem{{ProductID: primitive.NewObjectID().Hex(), Quantity: 2}},
		PlacedAt: time.Now(),
	}
	require.NoError(t, pub.PublishOrderPlaced(ctx, order))

	go p.Run(ctx)
	require.Eventually(t, func() bool {
		return cleaner.callCount() == 1
	}, 30*time.Second, 500*time.Millisecond)

	assert.Equal(t, order.UserID, cleaner.calls[0].userID.Hex())
}
