// internal/receipt/sink.go
package receipt

import (
	"context"
	"encoding/json"
	"time"

	"school-notify/internal/common/database"
)

// EventKind classifies engagement events.
type EventKind string

const (
	EventRead   EventKind = "read"
	EventAction EventKind = "action"
)

// Event is one engagement data point for the analytics index.
type Event struct {
	NotificationID string    `json:"notificationId"`
	RecipientID    string    `json:"recipientId"`
	Kind           EventKind `json:"kind"`
	Action         string    `json:"action,omitempty"`
	First          bool      `json:"first"`
	At             time.Time `json:"at"`
}

// EventSink receives engagement events for reporting.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// ElasticsearchSink indexes engagement events for engagement-pattern
// analysis.
type ElasticsearchSink struct {
	es    *database.ElasticsearchClient
	index string
}

func NewElasticsearchSink(es *database.ElasticsearchClient, index string) *ElasticsearchSink {
	if index == "" {
		index = "notification-events"
	}
	return &ElasticsearchSink{es: es, index: index}
}

func (s *ElasticsearchSink) Record(ctx context.Context, ev Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.es.Index(ctx, s.index, doc)
}

// NoopSink drops events; used when analytics indexing is disabled.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Event) error { return nil }
