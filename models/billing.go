package models

import "gorm.io/gorm"

// Plan represents available message credit packages
type Plan struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"` // free, starter, grow, enterprise
	Description string `json:"description"`

	// Message credits
	MessageCredits int `gorm:"not null" json:"message_credits"`
	Price          int `gorm:"not null" json:"price"` // in cents

	// Send allowance applied to the user on purchase
	DailySendLimit   int `gorm:"default:500" json:"daily_send_limit"`
	MonthlySendLimit int `gorm:"default:10000" json:"monthly_send_limit"`
	MaxInboxes       int `gorm:"default:1" json:"max_inboxes"`

	// For display purposes
	DisplayPrice string `gorm:"-" json:"display_price"` // e.g. "$20"
	IsPopular    bool   `gorm:"default:false" json:"is_popular"`
	Recommended  bool   `gorm:"default:false" json:"recommended"`

	StripePriceID   string `json:"stripe_price_id"`                            // price_xxx from Stripe dashboard
	BillingInterval string `json:"billing_interval" gorm:"default:'one_time'"` // one_time, monthly, yearly
}

// CreditTransaction records credit purchases
type CreditTransaction struct {
	gorm.Model
	UserID uint  `gorm:"not null;index" json:"user_id"`
	PlanID *uint `json:"plan_id,omitempty"`

	// Credit change, positive for purchases
	MessageCredits int `gorm:"not null" json:"message_credits"`

	// Financial information
	Amount        int    `json:"amount"` // in cents
	Currency      string `gorm:"default:'USD'" json:"currency"`
	PaymentStatus string `gorm:"default:'pending'" json:"payment_status"` // pending, completed, failed, refunded

	// Metadata
	Description string `json:"description"`

	StripePaymentIntentID string `json:"stripe_payment_intent_id"`
	StripeChargeID        string `json:"stripe_charge_id"`
	ReceiptURL            string `json:"receipt_url,omitempty"`

	// Relations
	User User  `json:"-"`
	Plan *Plan `json:"plan,omitempty"`
}

// CreditUsage tracks credit consumption per dispatched message
type CreditUsage struct {
	gorm.Model
	UserID     uint  `gorm:"not null;index" json:"user_id"`
	CampaignID *uint `json:"campaign_id,omitempty"`
	ContactID  *uint `json:"contact_id,omitempty"`

	// Usage details
	Amount      int    `gorm:"not null" json:"amount"` // Always positive
	Action      string `gorm:"not null" json:"action"` // send_message
	TargetPhone string `json:"target_phone,omitempty"`

	// Relations
	User     User      `json:"-"`
	Campaign *Campaign `json:"campaign,omitempty"`
}
