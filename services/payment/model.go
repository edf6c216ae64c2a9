package payment

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the payment lifecycle state. Transitions lists every legal edge;
// all writers go through the compare-and-set helpers so no handler can move a
// row along an edge that is not here.
type Status string

const (
	StatusPending        Status = "pending"
	StatusEscrowed       Status = "escrowed"
	StatusReleased       Status = "released"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusRequiresAction Status = "requires_action"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusEscrowed, StatusCompleted, StatusFailed, StatusRequiresAction},
	StatusEscrowed:       {StatusReleased, StatusFailed},
	StatusRequiresAction: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID                 string         `gorm:"primaryKey" json:"id"`
	Code               string         `gorm:"uniqueIndex;size:32" json:"code"`
	TaskID             string         `gorm:"index;size:64" json:"task_id"`
	TaskType           string         `gorm:"size:32" json:"task_type"`
	UserID             string         `gorm:"index;size:64" json:"user_id"`
	AmountCents        int64          `json:"amount_cents"`
	PlatformFeeCents   int64          `json:"platform_fee_cents"`
	ProcessingFeeCents int64          `json:"processing_fee_cents"`
	NetAmountCents     int64          `json:"net_amount_cents"`
	Status             Status         `gorm:"size:32;index" json:"status"`
	StripeIntentID     string         `gorm:"index;size:64" json:"stripe_intent_id"`
	StripeChargeID     string         `gorm:"size:64" json:"stripe_charge_id"`
	Description        string         `gorm:"size:512" json:"description"`
	Metadata           datatypes.JSON `json:"metadata"`
	Disputed           bool           `json:"disputed"`
	FailureReason      string         `gorm:"size:512" json:"failure_reason"`
	ReleaseScheduledAt *time.Time     `gorm:"index" json:"release_scheduled_at"`
	EscrowedAt         *time.Time     `json:"escrowed_at"`
	ReleasedAt         *time.Time     `json:"released_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
	FailedAt           *time.Time     `json:"failed_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// WebhookEvent pins processed processor event ids so redelivery is a no-op.
type WebhookEvent struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Type       string    `gorm:"size:64" json:"type"`
	ReceivedAt time.Time `gorm:"autoCreateTime" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// Release reasons accepted ahead of the scheduled release time.
const (
	ReasonManualRelease = "manual_release"
	ReasonTaskCompleted = "task_completed"
	ReasonAutoRelease   = "auto_release"
)
