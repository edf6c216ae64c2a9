package tasks

import (
	"context"
	"time"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	Get(ctx context.Context, taskID string) (*Task, error)
	// MarkCompleted stamps the task completed and records the payment status.
	// Safe to call more than once.
	MarkCompleted(ctx context.Context, tx *gorm.DB, taskID, paymentStatus string) error
	GetParticipant(ctx context.Context, taskID, userID string) (*TaskParticipant, error)
	// SetParticipantVerification moves a participant from applied/accepted to
	// verified or pending_review. The guard is a compare-and-set on status so
	// two concurrent verifications cannot both win.
	SetParticipantVerification(ctx context.Context, participantID string, from []ParticipantStatus, to ParticipantStatus, photo, notes string) error
}

type service struct {
	db           *gorm.DB
	tasks        repository.Repository[Task]
	participants repository.Repository[TaskParticipant]
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Tasks        repository.Repository[Task]
	Participants repository.Repository[TaskParticipant]
}

func NewService(p Params) (Service, error) {
	return &service{
		db:           p.DB,
		tasks:        p.Tasks,
		participants: p.Participants,
	}, nil
}

func (s *service) Get(ctx context.Context, taskID string) (*Task, error) {
	task, err := s.tasks.FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		return nil, errutil.Internal("failed to load task", err)
	}
	if task == nil {
		return nil, errutil.NotFound("task not found", nil)
	}
	return task, nil
}

func (s *service) MarkCompleted(ctx context.Context, tx *gorm.DB, taskID, paymentStatus string) error {
	conn := s.db
	if tx != nil {
		conn = tx
	}

	res := conn.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status <> ?", taskID, TaskStatusCompleted).
		Updates(map[string]interface{}{
			"status":         TaskStatusCompleted,
			"payment_status": paymentStatus,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return errutil.Internal("failed to complete task", res.Error)
	}
	if res.RowsAffected == 0 {
		zap.L().Debug("task already completed or missing", zap.String("task_id", taskID))
	}

	return nil
}

func (s *service) GetParticipant(ctx context.Context, taskID, userID string) (*TaskParticipant, error) {
	participant, err := s.participants.FindOne(ctx, &TaskParticipant{TaskID: taskID, UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load participant", err)
	}
	if participant == nil {
		return nil, errutil.NotFound("not a participant of this task", nil)
	}
	return participant, nil
}

func (s *service) SetParticipantVerification(ctx context.Context, participantID string, from []ParticipantStatus, to ParticipantStatus, photo, notes string) error {
	res := s.db.WithContext(ctx).
		Model(&TaskParticipant{}).
		Where("id = ? AND status IN ?", participantID, from).
		Updates(map[string]interface{}{
			"status":             to,
			"verification_photo": photo,
			"verification_notes": notes,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return errutil.Internal("failed to update participant", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("participant is not in a verifiable state", nil)
	}

	return nil
}
