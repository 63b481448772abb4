package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product holds the stock counter the settlement path decrements.
// Stock is authoritative only under the compare-and-decrement in the
// ledger repository; reads elsewhere are advisory.
type Product struct {
	ID        uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string          `json:"name" gorm:"size:128;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Stock     int64           `json:"stock" gorm:"not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// User is the ledger view of an account: the stored-value balance plus
// the email the gateway needs for invoices. Identity itself (sessions,
// roles) lives in the auth collaborator, not here.
type User struct {
	ID        uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string          `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }
