package models

import (
	"time"

	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/pos-agent/pkg/db/types"
)

// HeldSale is a parked cart snapshot.
type HeldSale struct {
	ID           int64            `gorm:"column:id;primaryKey;autoIncrement:false"`
	TerminalID   string           `gorm:"column:terminal_id;not null"`
	Items        dbtypes.JSONText `gorm:"column:items;not null"`
	Total        decimal.Decimal  `gorm:"column:total;not null"`
	CustomerName *string          `gorm:"column:customer_name"`
	Notes        *string          `gorm:"column:notes"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
}

func (HeldSale) TableName() string { return "held_sales" }
