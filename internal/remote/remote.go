// Package remote defines the contract with the multi-tenant remote data
// service: table reads, idempotent upserts and deletes, and a per-team
// change-event subscription. Concrete services live in the postgres and
// kafka packages; Memory is an in-process implementation.
package remote

import (
	"context"
	"encoding/json"
	"slices"
	"time"
)

// Table names a remote table
type Table string

const (
	TableTeams          Table = "teams"
	TablePlayers        Table = "players"
	TableGames          Table = "games"
	TableGameResponses  Table = "game_responses"
	TableEvents         Table = "events"
	TableEventResponses Table = "event_responses"
	TableChatMessages   Table = "chat_messages"
	TablePaymentPeriods Table = "payment_periods"
	TablePlayerPayments Table = "player_payments"
	TablePaymentEntries Table = "payment_entries"
	TablePhotos         Table = "photos"
	TableNotifications  Table = "notifications"
	TablePolls          Table = "polls"
	TableTeamLinks      Table = "team_links"
)

// AllTables lists every table a team subscription covers
var AllTables = []Table{
	TableTeams,
	TablePlayers,
	TableGames,
	TableGameResponses,
	TableEvents,
	TableEventResponses,
	TableChatMessages,
	TablePaymentPeriods,
	TablePlayerPayments,
	TablePaymentEntries,
	TablePhotos,
	TableNotifications,
	TablePolls,
	TableTeamLinks,
}

// Known reports whether the table is part of the schema
func (t Table) Known() bool {
	return slices.Contains(AllTables, t)
}

// Op is the kind of change carried by a ChangeEvent
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	// OpReset tells the consumer the subscription reconnected and any
	// events in between are lost; a full reload is required.
	OpReset Op = "RESET"
)

// ChangeEvent is one change notification. Old is set for updates and
// deletes where the service provides it, New for inserts and updates.
type ChangeEvent struct {
	Table      Table           `json:"table"`
	Op         Op              `json:"op"`
	TeamID     string          `json:"team_id,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// Row returns the payload that identifies the changed row
func (e ChangeEvent) Row() json.RawMessage {
	if e.Op == OpDelete || len(e.New) == 0 {
		return e.Old
	}
	return e.New
}

// Cond is an equality predicate on a column
type Cond struct {
	Column string
	Value  string
}

// Filter is a conjunction of equality predicates
type Filter []Cond

// Eq builds a single-predicate filter
func Eq(column, value string) Filter {
	return Filter{{Column: column, Value: value}}
}

// And returns a copy of the filter with one more predicate
func (f Filter) And(column, value string) Filter {
	return append(slices.Clone(f), Cond{Column: column, Value: value})
}

// Reader reads rows from a table
type Reader interface {
	Select(ctx context.Context, table Table, filter Filter) ([]json.RawMessage, error)
}

// Writer performs idempotent upserts keyed by row id and filtered deletes
type Writer interface {
	Upsert(ctx context.Context, rows ...Row) error
	Delete(ctx context.Context, table Table, filter Filter) error
}

// ReadWriter is the request/response half of the service
type ReadWriter interface {
	Reader
	Writer
}

// Subscription is a live change stream for one team
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// ChangeFeed opens change subscriptions. Delivery is at-most-once, with no
// ordering across tables and no replay across reconnects.
type ChangeFeed interface {
	Subscribe(ctx context.Context, teamID string, tables []Table) (Subscription, error)
}

// Service is the full remote data service
type Service interface {
	ReadWriter
	ChangeFeed
}

type combined struct {
	ReadWriter
	ChangeFeed
}

// Combine joins a table store and a change feed into one Service
func Combine(rw ReadWriter, feed ChangeFeed) Service {
	return combined{ReadWriter: rw, ChangeFeed: feed}
}
