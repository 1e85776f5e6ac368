package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/medconnect/medconnect/internal/platform/websocket"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestNewEvent(t *testing.T) {
	uid := uuid.New()
	ev, err := NewEvent(TypePrescriptionNearby, uid, map[string]string{"prescription_id": "p1"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.ID == uuid.Nil || ev.UserID != uid || ev.Type != TypePrescriptionNearby {
		t.Errorf("unexpected event %+v", ev)
	}
	if string(ev.Data) != `{"prescription_id":"p1"}` {
		t.Errorf("unexpected data %s", ev.Data)
	}
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	ev, _ := NewEvent(TypeResponseAccepted, uuid.New(), nil)

	err := Multi{failing, ok}.Publish(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.count() != 1 || failing.count() != 1 {
		t.Error("every sink should receive the event")
	}
}

func TestKafkaPublisher_KeysByRecipient(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "medconnect.notifications"}
	uid := uuid.New()
	ev, _ := NewEvent(TypePrescriptionNearby, uid, map[string]int{"n": 1})

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != uid.String() {
		t.Errorf("key = %s, want %s", msg.Key, uid)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not an event: %v", err)
	}
	if decoded.ID != ev.ID || decoded.Type != ev.Type {
		t.Errorf("decoded %+v, want %+v", decoded, ev)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TypePrescriptionNearby {
		t.Errorf("unexpected headers %v", msg.Headers)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("no leader")}, topic: "t"}
	ev, _ := NewEvent(TypePrescriptionNearby, uuid.New(), nil)
	err := p.Publish(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "no leader") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestHubPublisher_DeliversToUserTopic(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	uid := uuid.New()
	client := websocket.NewClient(uid, websocket.UserTopic(uid))
	hub.Register(client)
	defer hub.Unregister(client)

	ev, _ := NewEvent(TypePrescriptionAccepted, uid, nil)
	if err := NewHubPublisher(hub).Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got Event
	if err := json.Unmarshal(<-client.Send, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != ev.ID {
		t.Errorf("got event %s, want %s", got.ID, ev.ID)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	ev, _ := NewEvent(TypeResponseReceived, uuid.New(), map[string]string{"k": "v"})
	if err := NewLogPublisher(zerolog.New(&buf)).Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), `"type":"broadcast.response"`) || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("unexpected log output %s", buf.String())
	}
}

func TestNotifier_IsAsyncAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	pub := &recordingPublisher{err: errors.New("down")}
	n := NewNotifier(pub, zerolog.New(&buf))

	a, _ := NewEvent(TypePrescriptionNearby, uuid.New(), nil)
	b, _ := NewEvent(TypePrescriptionNearby, uuid.New(), nil)
	n.Notify(a, b)
	n.Notify()
	n.Wait()

	if pub.count() != 2 {
		t.Errorf("expected 2 published events, got %d", pub.count())
	}
	if strings.Count(buf.String(), "notification delivery failed") != 2 {
		t.Errorf("expected failures to be logged, got %s", buf.String())
	}
}
