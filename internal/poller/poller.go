package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const GroupID = "storefront-cart-cleaner"

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// errMalformed marks events that can never be handled. They are committed
// and skipped.
var errMalformed = errors.New("malformed order-placed event")

// CartCleaner removes ordered lines from a user's cart.
type CartCleaner interface {
	RemoveOrderedLines(ctx context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	carts  CartCleaner
	reader messageReader
	log    *logger.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPoller(carts CartCleaner, log *logger.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    events.TopicOrderPlaced,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{
		carts:      carts,
		reader:     reader,
		log:        log,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Run consumes until ctx is cancelled. A message is committed only after its
// cart was cleaned or it turned out to be malformed; transient failures are
// retried on the same message with exponential backoff.
func (p *Poller) Run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.WithError(err).Error("order-placed poller failed")
			if !p.sleep(ctx, p.backoff(failures)) {
				return
			}
			failures++
			continue
		}
		failures = 0
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Error("error closing order-placed reader")
	}
}

func (p *Poller) processNext(ctx context.Context) error {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		return fmt.Errorf("error fetching order-placed message: %w", err)
	}

	entry := p.log.WithFields(logrus.Fields{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
	})

	for attempt := 0; ; attempt++ {
		err := p.handle(ctx, m.Value)
		if err == nil {
			break
		}
		if errors.Is(err, errMalformed) {
			entry.WithError(err).Error("skipping malformed order-placed message")
			break
		}
		entry.WithError(err).WithField("attempt", attempt+1).Warn("cart cleanup failed, retrying")
		if !p.sleep(ctx, p.backoff(attempt)) {
			return ctx.Err()
		}
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("error committing offset %d: %w", m.Offset, err)
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, value []byte) error {
	var event events.OrderPlaced
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: error parsing message: %v", errMalformed, err)
	}

	userID, err := primitive.ObjectIDFromHex(event.UserID)
	if err != nil {
		return fmt.Errorf("%w: missing or invalid user_id %q", errMalformed, event.UserID)
	}

	productIDs := make([]primitive.ObjectID, 0, len(event.Items))
	for _, item := range event.Items {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return fmt.Errorf("%w: invalid product_id %q in order %s", errMalformed, item.ProductID, event.OrderID)
		}
		productIDs = append(productIDs, id)
	}

	if err := p.carts.RemoveOrderedLines(ctx, userID, productIDs); err != nil {
		return fmt.Errorf("failed to clean cart for order %s: %w", event.OrderID, err)
	}
	return nil
}

func (p *Poller) backoff(attempt int) time.Duration {
	d := p.minBackoff
	for i := 0; i < attempt && d < p.maxBackoff; i++ {
		d *= 2
	}
	if d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
