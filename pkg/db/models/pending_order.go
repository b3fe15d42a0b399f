package models

import (
	"time"

	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/pos-agent/pkg/db/types"
)

// PendingOrder is an offline queue entry: a sale whose submission failed
// transiently and awaits resubmission.
type PendingOrder struct {
	LocalID         int64            `gorm:"column:local_id;primaryKey;autoIncrement"`
	ClientReference string           `gorm:"column:client_reference;not null;uniqueIndex:ux_pending_orders_client_reference"`
	TerminalID      string           `gorm:"column:terminal_id;not null"`
	CashierID       string           `gorm:"column:cashier_id;not null"`
	Total           decimal.Decimal  `gorm:"column:total;not null"`
	Payload         dbtypes.JSONText `gorm:"column:payload;not null"`
	AttemptCount    int              `gorm:"column:attempt_count;not null;default:0"`
	LastError       *string          `gorm:"column:last_error"`
	LastAttemptAt   *time.Time       `gorm:"column:last_attempt_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;not null"`
}

func (PendingOrder) TableName() string { return "pending_orders" }
