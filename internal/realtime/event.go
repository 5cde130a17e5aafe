// Package realtime fans row change events out to subscribers. Events are
// refresh signals: a subscriber that falls behind loses events, never
// blocks the publisher.
package realtime

import (
	"context"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Tables that emit change events.
const (
	TableDocuments      = "documents"
	TableQuizzes        = "quizzes"
	TableConceptMastery = "concept_mastery"
)

// ChangeEvent describes one row change. Columns carries the filterable
// column values of the row, e.g. id, user_id and document_id.
type ChangeEvent struct {
	Table   string            `json:"table"`
	Op      Op                `json:"op"`
	Columns map[string]string `json:"columns"`
	At      time.Time         `json:"at"`
}

// Column returns the value of a filterable column, or "".
func (e ChangeEvent) Column(name string) string {
	if e.Columns == nil {
		return ""
	}
	return e.Columns[name]
}

// Filter restricts a subscription to rows whose Column equals Value.
// A zero Filter matches every row.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Topic is a table plus an optional row filter.
type Topic struct {
	Table  string `json:"table"`
	Filter Filter `json:"filter"`
}

// Matches reports whether ev belongs to the topic.
func (t Topic) Matches(ev ChangeEvent) bool {
	if t.Table != "" && t.Table != ev.Table {
		return false
	}
	if t.Filter.Column == "" {
		return true
	}
	return ev.Column(t.Filter.Column) == t.Filter.Value
}

// Publisher accepts change events. The row store publishes through it.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent)
}

// Bus carries events between service instances.
type Bus interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev ChangeEvent)) error
	Close() error
}
