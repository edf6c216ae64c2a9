package profile

import "time"

// Profile mirrors the auth provider's user record with billing state layered
// on. Rows are created lazily on the first payment touch.
type Profile struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	UserID             string    `gorm:"uniqueIndex;size:64" json:"user_id"`
	Email              string    `gorm:"size:255" json:"email"`
	Phone              string    `gorm:"index;size:32" json:"phone"`
	PhoneVerified      bool      `json:"phone_verified"`
	StripeCustomerID   string    `gorm:"size:64" json:"stripe_customer_id"`
	SubscriptionTier   string    `gorm:"size:32;default:free" json:"subscription_tier"`
	SubscriptionStatus string    `gorm:"size:32" json:"subscription_status"`
	MonthlyTaskLimit   int       `json:"monthly_task_limit"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// SubscriptionEvent carries the subset of a billing-subscription webhook the
// profile cares about.
type SubscriptionEvent struct {
	UserID           string
	StripeCustomerID string
	Tier             string
	Status           string
	MonthlyTaskLimit int
}

var tierLimits = map[string]int{
	"free":    5,
	"pro":     50,
	"premium": 150,
}
