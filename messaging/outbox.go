package messaging

import (
	"log"
	"time"

	"ffcentral/metrics"
	"ffcentral/store"
)

// Publisher is the send side of Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// OutboxStore holds publishes that could not be delivered.
type OutboxStore interface {
	EnqueueOutbox(topic string, payload []byte, qos byte, retain bool) error
	SupersedeOutbox(topic string) error
	ListPendingOutbox(limit int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	IncrementOutboxRetries(id int64) error
}

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       OutboxStore
	client   Publisher
	interval time.Duration
	stopChan chan struct{}
}

func NewOutboxDrainer(db OutboxStore, client Publisher, interval time.Duration) *OutboxDrainer {
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	select {
	case d.stopChan <- struct{}{}:
	default:
	}
}

func (d *OutboxDrainer) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// Send publishes now and parks the message in the outbox when the bus rejects it.
// A retained message replaces older pending copies of the same topic.
func (d *OutboxDrainer) Send(topic string, payload []byte, qos byte, retain bool) error {
	if retain {
		if err := d.db.SupersedeOutbox(topic); err != nil {
			log.Printf("outbox: supersede %s: %v", topic, err)
		}
	}
	err := d.client.Publish(topic, payload, qos, retain)
	if err == nil {
		return nil
	}
	metrics.PublishFailuresTotal.WithLabelValues("snapshot").Inc()
	log.Printf("outbox: publish to %s failed, queued: %v", topic, err)
	return d.db.EnqueueOutbox(topic, payload, qos, retain)
}

func (d *OutboxDrainer) drain() {
	msgs, err := d.db.ListPendingOutbox(50)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return
	}
	metrics.OutboxPending.Set(float64(len(msgs)))
	for _, msg := range msgs {
		if err := d.client.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retain); err != nil {
			log.Printf("outbox: publish to %s failed: %v", msg.Topic, err)
			d.db.IncrementOutboxRetries(msg.ID)
			continue
		}
		d.db.AckOutbox(msg.ID)
	}
}
