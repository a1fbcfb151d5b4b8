package messaging

import (
	"errors"
	"testing"

	"ffcentral/config"
	"ffcentral/store"
)

type mockPublisher struct {
	sent []string
	fail error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, topic)
	return nil
}

type mockOutbox struct {
	pending    []*store.OutboxMessage
	acked      []int64
	retried    []int64
	superseded []string
	nextID     int64
}

func (m *mockOutbox) EnqueueOutbox(topic string, payload []byte, qos byte, retain bool) error {
	m.nextID++
	m.pending = append(m.pending, &store.OutboxMessage{ID: m.nextID, Topic: topic, Payload: payload, QoS: qos, Retain: retain})
	return nil
}

func (m *mockOutbox) SupersedeOutbox(topic string) error {
	m.superseded = append(m.superseded, topic)
	kept := m.pending[:0]
	for _, p := range m.pending {
		if p.Topic != topic {
			kept = append(kept, p)
		}
	}
	m.pending = kept
	return nil
}

func (m *mockOutbox) ListPendingOutbox(limit int) ([]*store.OutboxMessage, error) {
	return m.pending, nil
}

func (m *mockOutbox) AckOutbox(id int64) error {
	m.acked = append(m.acked, id)
	kept := m.pending[:0]
	for _, p := range m.pending {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	m.pending = kept
	return nil
}

func (m *mockOutbox) IncrementOutboxRetries(id int64) error {
	m.retried = append(m.retried, id)
	return nil
}

func TestSendQueuesOnFailure(t *testing.T) {
	pub := &mockPublisher{fail: errors.New("offline")}
	box := &mockOutbox{}
	d := NewOutboxDrainer(box, pub, 0)

	if err := d.Send("ccu/order/active", []byte("[1]"), 2, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := d.Send("ccu/order/active", []byte("[2]"), 2, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(box.pending) != 1 || string(box.pending[0].Payload) != "[2]" {
		t.Fatalf("pending = %d, want only the latest snapshot", len(box.pending))
	}

	d.drain()
	if len(box.retried) != 1 {
		t.Errorf("retries = %d, want 1", len(box.retried))
	}

	pub.fail = nil
	d.drain()
	if len(box.pending) != 0 || len(pub.sent) != 1 {
		t.Errorf("pending=%d sent=%d after recovery", len(box.pending), len(pub.sent))
	}
}

func TestSendPublishesDirectly(t *testing.T) {
	pub := &mockPublisher{}
	box := &mockOutbox{}
	d := NewOutboxDrainer(box, pub, 0)
	if err := d.Send("ccu/pairing/state", []byte("{}"), 1, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(pub.sent) != 1 || len(box.pending) != 0 || len(box.superseded) != 0 {
		t.Errorf("sent=%d pending=%d superseded=%d", len(pub.sent), len(box.pending), len(box.superseded))
	}
}

func TestDispatchMatchesFilters(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "kafka"})
	var got []string
	c.subs = []subscription{
		{filter: "fts/v1/ff/+/state", handler: func(topic string, _ []byte) { got = append(got, "fts:"+topic) }},
		{filter: "ccu/order/#", handler: func(topic string, _ []byte) { got = append(got, "ccu:"+topic) }},
	}
	c.dispatch("fts/v1/ff/FTS1/state", nil)
	c.dispatch("ccu/order/request", nil)
	c.dispatch("module/v1/ff/M1/state", nil)
	if len(got) != 2 || got[0] != "fts:fts/v1/ff/FTS1/state" || got[1] != "ccu:ccu/order/request" {
		t.Errorf("dispatched = %v", got)
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	for _, backend := range []string{"mqtt", "kafka", "amqp"} {
		c := NewClient(&config.MessagingConfig{Backend: backend})
		if err := c.Publish("x", nil, 0, false); err == nil {
			t.Errorf("%s: expected error before Connect", backend)
		}
		if c.IsConnected() {
			t.Errorf("%s: should not report connected", backend)
		}
	}
}
