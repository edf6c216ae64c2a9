package earnings

import "time"

// Earning is append-only. The unique index on PaymentID is what makes webhook
// redelivery and release retries idempotent.
type Earning struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"uniqueIndex;size:32" json:"code"`
	UserID      string    `gorm:"index;size:64" json:"user_id"`
	PaymentID   string    `gorm:"uniqueIndex;size:64" json:"payment_id"`
	TaskID      string    `gorm:"index;size:64" json:"task_id"`
	TaskType    string    `gorm:"size:32" json:"task_type"`
	Source      string    `gorm:"size:32" json:"source"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Earning) TableName() string {
	return "user_earnings"
}
