package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account on the console. Send allowance lives here:
// a credit balance plus daily/monthly counters that the quota guard
// checks and reserves against atomically.
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Profile information
	Name     *string `json:"name,omitempty"`
	Company  *string `json:"company,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Credit-based plan information
	PlanID           *uint      `json:"plan_id,omitempty"`
	PlanName         string     `gorm:"default:'free'" json:"plan_name"` // free, starter, grow, enterprise
	MessageCredits   int        `gorm:"default:1000" json:"message_credits"`
	SentToday        int        `gorm:"default:0" json:"sent_today"`
	SentThisMonth    int        `gorm:"default:0" json:"sent_this_month"`
	DailySendLimit   int        `gorm:"default:500" json:"daily_send_limit"`
	MonthlySendLimit int        `gorm:"default:10000" json:"monthly_send_limit"`
	LastCounterReset *time.Time `json:"last_counter_reset,omitempty"`

	// Stripe integration
	StripeCustomerID *string `gorm:"index" json:"stripe_customer_id,omitempty"`
	DefaultCurrency  string  `gorm:"default:'usd'" json:"default_currency"`

	// Relations
	Campaigns    []Campaign          `gorm:"foreignKey:UserID" json:"campaigns,omitempty"`
	Transactions []CreditTransaction `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
}
