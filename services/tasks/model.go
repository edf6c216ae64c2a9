package tasks

import "time"

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

type ParticipantStatus string

const (
	ParticipantApplied       ParticipantStatus = "applied"
	ParticipantAccepted      ParticipantStatus = "accepted"
	ParticipantVerified      ParticipantStatus = "verified"
	ParticipantPendingReview ParticipantStatus = "pending_review"
)

type Task struct {
	ID                    string     `gorm:"primaryKey" json:"id"`
	Title                 string     `gorm:"size:255" json:"title"`
	Type                  string     `gorm:"size:32" json:"type"`
	Status                TaskStatus `gorm:"size:32;index;default:open" json:"status"`
	PaymentStatus         string     `gorm:"size:32" json:"payment_status"`
	PlatformFunded        bool       `json:"platform_funded"`
	EarningPotentialCents int64      `json:"earning_potential_cents"`
	CreatorID             string     `gorm:"index;size:64" json:"creator_id"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

type TaskParticipant struct {
	ID                string            `gorm:"primaryKey" json:"id"`
	TaskID            string            `gorm:"index:idx_task_user,unique;size:64" json:"task_id"`
	UserID            string            `gorm:"index:idx_task_user,unique;size:64" json:"user_id"`
	Status            ParticipantStatus `gorm:"size:32;index;default:applied" json:"status"`
	VerificationPhoto string            `gorm:"size:512" json:"verification_photo"`
	VerificationNotes string            `gorm:"size:2048" json:"verification_notes"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (TaskParticipant) TableName() string {
	return "task_participants"
}
