// Package notification delivers domain events to users. Events are published
// to every configured sink: the live WebSocket hub, Kafka for downstream
// consumers, or the log when no broker is configured.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	TypePrescriptionNearby   = "prescription.nearby"
	TypePrescriptionAccepted = "prescription.accepted"
	TypeResponseReceived     = "broadcast.response"
	TypeResponseAccepted     = "response.accepted"
)

// Event is a notification addressed to one user.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	UserID    uuid.UUID       `json:"user_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an event for userID with data marshaled as JSON.
func NewEvent(eventType string, userID uuid.UUID, data interface{}) (Event, error) {
	ev := Event{
		ID:        uuid.New(),
		Type:      eventType,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the log. It stands in for Kafka in
// development.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info().
		Str("event_id", ev.ID.String()).
		Str("type", ev.Type).
		Str("user_id", ev.UserID.String()).
		RawJSON("data", dataOrNull(ev.Data)).
		Msg("notification")
	return nil
}

func dataOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

// Notifier publishes events in the background so that callers never wait
// on, or fail because of, notification delivery.
type Notifier struct {
	pub     Publisher
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(pub Publisher, logger zerolog.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger, timeout: 5 * time.Second}
}

// Notify publishes events asynchronously. Failures are logged.
func (n *Notifier) Notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		for _, ev := range events {
			if err := n.pub.Publish(ctx, ev); err != nil {
				n.logger.Warn().Err(err).
					Str("type", ev.Type).
					Str("user_id", ev.UserID.String()).
					Msg("notification delivery failed")
			}
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
