package entity

import (
	"time"

	"github.com/guregu/null/v6"
)

// ForwardSubscription selects one symbol (and optionally a bar timeframe)
// the edge node forwards to the relay. Rows with a NULL timeframe select
// tick forwarding only.
type ForwardSubscription struct {
	ID            string      `db:"id" json:"id"`
	Symbol        string      `db:"symbol" json:"symbol"`
	Timeframe     null.String `db:"timeframe" json:"timeframe"`
	Active        bool        `db:"active" json:"active"`
	DeactivatedAt null.Time   `db:"deactivated_at" json:"deactivated_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

func (s ForwardSubscription) TableName() string {
	return "forward_subscriptions"
}
