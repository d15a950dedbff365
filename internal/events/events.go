package events

import (
	"context"

	"github.com/google/uuid"
)

// Channels
const (
	ChannelEscrow = "events:escrow"
	ChannelLoan   = "events:loan"
	ChannelAsset  = "events:asset"
)

// Event types
const (
	EventEscrowActivity    = "escrow_activity"
	EventLoanStatusChanged = "loan_status_changed"
	EventAssetUpdated      = "asset_updated"
)

// Event is published on a redis channel. Recipients are the user ids the
// websocket hub delivers it to.
type Event struct {
	Type       string         `json:"type"`
	Recipients []uuid.UUID    `json:"recipients"`
	Payload    map[string]any `json:"payload"`
}

func (e Event) IsFor(userID uuid.UUID) bool {
	for _, r := range e.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops events; used when redis is not wired (tests, CLI tools).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
