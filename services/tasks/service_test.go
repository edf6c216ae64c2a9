package tasks

import (
	"context"
	"testing"

	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	conn := testutil.NewTestDB(t, &Task{}, &TaskParticipant{})

	svc, err := NewService(Params{
		DB:           conn,
		Tasks:        repository.ProvideStore[Task](conn),
		Participants: repository.ProvideStore[TaskParticipant](conn),
	})
	require.NoError(t, err)

	return svc, conn
}

func TestMarkCompletedIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	require.NoError(t, conn.Create(&Task{ID: "task_1", Status: TaskStatusInProgress}).Error)

	require.NoError(t, svc.MarkCompleted(ctx, nil, "task_1", "released"))
	require.NoError(t, svc.MarkCompleted(ctx, nil, "task_1", "released"))

	var task Task
	require.NoError(t, conn.First(&task, "id = ?", "task_1").Error)
	require.Equal(t, TaskStatusCompleted, task.Status)
	require.Equal(t, "released", task.PaymentStatus)
}

func TestSetParticipantVerificationGuarded(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	require.NoError(t, conn.Create(&TaskParticipant{
		ID:     "part_1",
		TaskID: "task_1",
		UserID: "user_1",
		Status: ParticipantAccepted,
	}).Error)

	from := []ParticipantStatus{ParticipantApplied, ParticipantAccepted}

	require.NoError(t, svc.SetParticipantVerification(ctx, "part_1", from, ParticipantVerified, "photo_key", "done"))

	// A second verification attempt finds no row in a verifiable state.
	err := svc.SetParticipantVerification(ctx, "part_1", from, ParticipantVerified, "", "")
	require.Error(t, err)

	var p TaskParticipant
	require.NoError(t, conn.First(&p, "id = ?", "part_1").Error)
	require.Equal(t, ParticipantVerified, p.Status)
	require.Equal(t, "photo_key", p.VerificationPhoto)
}

func TestGetParticipantNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetParticipant(context.Background(), "task_x", "user_x")
	require.Error(t, err)
}
