package store

import (
	"time"
)

// OutboxMessage is a publish that failed and waits for the drainer.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(topic string, payload []byte, qos byte, retain bool) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, qos, retain) VALUES (?, ?, ?, ?)`),
		topic, payload, int(qos), retain)
	return err
}

func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, qos, retain, retries, created_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var qos int
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &qos, &m.Retain, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.QoS = byte(qos)
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at={{now}} WHERE id=?`), id)
	return err
}

func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}

// SupersedeOutbox marks pending messages for topic as sent. Retained snapshots
// only need their latest version delivered.
func (db *DB) SupersedeOutbox(topic string) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at={{now}} WHERE topic=? AND sent_at IS NULL`), topic)
	return err
}

// PurgeSentOutbox deletes delivered messages older than before.
func (db *DB) PurgeSentOutbox(before time.Time) (int64, error) {
	res, err := db.Exec(db.Q(`DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`), formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
