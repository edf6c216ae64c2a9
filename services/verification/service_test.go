package verification

import (
	"context"
	"errors"
	"testing"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/services/payment"
	"bittietasks-controlplane/services/tasks"
	"bittietasks-controlplane/services/testutil"

	flagsmith "github.com/Flagsmith/flagsmith-go-client/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeVerifier struct {
	result *Result
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(ctx context.Context, in VerifyInput) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePayments struct {
	payouts []string
}

func (f *fakePayments) CreateIntent(ctx context.Context, in payment.CreateIntentInput) (*payment.CreateIntentResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePayments) ReleaseEscrow(ctx context.Context, in payment.ReleaseInput) (*payment.ReleaseResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePayments) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	return errors.New("not implemented")
}

func (f *fakePayments) RecordVerifiedPayout(ctx context.Context, t *tasks.Task, userID string) (*payment.Payment, error) {
	f.payouts = append(f.payouts, t.ID)
	return &payment.Payment{ID: "pay_direct", Status: payment.StatusCompleted}, nil
}

func (f *fakePayments) Reconcile(ctx context.Context) error {
	return errors.New("not implemented")
}

type fakeFlags struct{}

func (fakeFlags) Features(ctx context.Context, identifier string) ([]flagsmith.Flag, error) {
	return nil, nil
}

func (fakeFlags) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	return flagsmith.Flags{}, errors.New("flagsmith unavailable")
}

type testEnv struct {
	svc      Service
	db       *gorm.DB
	verifier *fakeVerifier
	payments *fakePayments
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.NewTestDB(t, &tasks.Task{}, &tasks.TaskParticipant{})

	taskSvc, err := tasks.NewService(tasks.Params{
		DB:           conn,
		Tasks:        repository.ProvideStore[tasks.Task](conn),
		Participants: repository.ProvideStore[tasks.TaskParticipant](conn),
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Verification.AutoApproveRate = 0.70

	verifier := &fakeVerifier{result: &Result{Approved: true, Confidence: 0.93, Reasoning: "matches brief"}}
	payments := &fakePayments{}

	svc, err := NewService(Params{
		Config:   cfg,
		Tasks:    taskSvc,
		Payments: payments,
		Verifier: verifier,
		Flags:    fakeFlags{},
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, db: conn, verifier: verifier, payments: payments}
}

func seedClaim(t *testing.T, env *testEnv, funded bool, earningCents int64) {
	t.Helper()

	require.NoError(t, env.db.Create(&tasks.Task{
		ID:                    "task_1",
		Type:                  "solo",
		Status:                tasks.TaskStatusInProgress,
		PlatformFunded:        funded,
		EarningPotentialCents: earningCents,
	}).Error)
	require.NoError(t, env.db.Create(&tasks.TaskParticipant{
		ID:     "part_1",
		TaskID: "task_1",
		UserID: "user_1",
		Status: tasks.ParticipantAccepted,
	}).Error)
}

func TestAIVerifyApprovedPaysOut(t *testing.T) {
	env := newTestEnv(t)
	seedClaim(t, env, true, 2_000)

	outcome, err := env.svc.AIVerify(context.Background(), VerifyRequest{
		TaskID: "task_1",
		UserID: "user_1",
		Notes:  "all done",
	})
	require.NoError(t, err)
	require.True(t, outcome.Approved)
	require.Equal(t, string(tasks.ParticipantVerified), outcome.Status)
	require.NotNil(t, outcome.Payment)
	require.Equal(t, []string{"task_1"}, env.payments.payouts)

	var p tasks.TaskParticipant
	require.NoError(t, env.db.First(&p, "id = ?", "part_1").Error)
	require.Equal(t, tasks.ParticipantVerified, p.Status)
}

func TestAIVerifyRejectedGoesToReview(t *testing.T) {
	env := newTestEnv(t)
	seedClaim(t, env, true, 2_000)
	env.verifier.result = &Result{Approved: false, Confidence: 0.35, Reasoning: "photo unclear"}

	outcome, err := env.svc.AIVerify(context.Background(), VerifyRequest{TaskID: "task_1", UserID: "user_1"})
	require.NoError(t, err)
	require.False(t, outcome.Approved)
	require.Equal(t, string(tasks.ParticipantPendingReview), outcome.Status)
	require.Nil(t, outcome.Payment)
	require.Empty(t, env.payments.payouts)
}

func TestAIVerifyUnfundedTaskSkipsPayout(t *testing.T) {
	env := newTestEnv(t)
	seedClaim(t, env, false, 2_000)

	outcome, err := env.svc.AIVerify(context.Background(), VerifyRequest{TaskID: "task_1", UserID: "user_1"})
	require.NoError(t, err)
	require.True(t, outcome.Approved)
	require.Nil(t, outcome.Payment)
	require.Empty(t, env.payments.payouts)
}

func TestAIVerifyNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&tasks.Task{ID: "task_1", Type: "solo"}).Error)

	_, err := env.svc.AIVerify(context.Background(), VerifyRequest{TaskID: "task_1", UserID: "stranger"})
	require.Error(t, err)
	require.Zero(t, env.verifier.calls)
}

func TestAIVerifyAlreadyVerified(t *testing.T) {
	env := newTestEnv(t)
	seedClaim(t, env, false, 0)
	require.NoError(t, env.db.Model(&tasks.TaskParticipant{}).
		Where("id = ?", "part_1").
		Update("status", tasks.ParticipantVerified).Error)

	_, err := env.svc.AIVerify(context.Background(), VerifyRequest{TaskID: "task_1", UserID: "user_1"})
	require.Error(t, err)
}

func TestQuickVerifyWithoutFlagQueuesReview(t *testing.T) {
	env := newTestEnv(t)
	seedClaim(t, env, true, 2_000)

	outcome, err := env.svc.QuickVerify(context.Background(), VerifyRequest{TaskID: "task_1", UserID: "user_1"})
	require.NoError(t, err)
	require.False(t, outcome.Approved)
	require.Equal(t, string(tasks.ParticipantPendingReview), outcome.Status)
	require.Empty(t, env.payments.payouts)
	require.Zero(t, env.verifier.calls)
}
