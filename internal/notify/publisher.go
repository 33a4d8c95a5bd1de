// Package notify pushes reload events to NATS so dashboard gateways
// can react to new data without polling the version endpoint.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/cache"
)

// SubjectPrefix is the root of the update subject hierarchy:
// series.updated.<bucket>.<series-id>.
const SubjectPrefix = "series.updated"

// UpdateEvent is published after every successful cache reload.
type UpdateEvent struct {
	Bucket    string    `json:"bucket"`
	SeriesID  string    `json:"series_id"`
	Version   uint64    `json:"version"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps a NATS connection. A nil Publisher is valid and
// publishes nothing, so callers can wire it unconditionally.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// Connect dials NATS with persistent reconnects. An empty URL
// disables publishing and returns a nil Publisher.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	logger := logrus.WithField("component", "notify")
	opts := []nats.Option{
		nats.Name("seriesd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Publish sends an update event for a refreshed cache entry. Publish
// failures are logged, never propagated; the cache stays correct
// without the notification.
func (p *Publisher) Publish(entry cache.Entry) {
	if p == nil {
		return
	}

	event := UpdateEvent{
		Bucket:    entry.Key.Bucket,
		SeriesID:  entry.Key.SeriesID,
		Version:   entry.Version,
		Rows:      entry.Series.Len(),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Errorf("failed to marshal update event: %v", err)
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, entry.Key.Bucket, entry.Key.SeriesID)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Errorf("failed to publish %s: %v", subject, err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}
