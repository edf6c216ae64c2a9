package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/pkg/stripe"
	"bittietasks-controlplane/services/earnings"
	"bittietasks-controlplane/services/feepolicy"
	"bittietasks-controlplane/services/profile"
	"bittietasks-controlplane/services/tasks"
	"bittietasks-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeProcessor struct {
	intents    int
	captures   []string
	captureErr error
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, in stripe.IntentInput) (*stripe.IntentResult, error) {
	f.intents++
	return &stripe.IntentResult{
		ID:           fmt.Sprintf("pi_test_%d", f.intents),
		ClientSecret: "cs_test_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (f *fakeProcessor) Capture(ctx context.Context, intentID string, amountCents int64) error {
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captures = append(f.captures, intentID)
	return nil
}

func (f *fakeProcessor) Cancel(ctx context.Context, intentID string) error {
	return nil
}

func (f *fakeProcessor) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	return "cus_test", nil
}

func (f *fakeProcessor) ConstructEvent(payload []byte, sigHeader string) (stripego.Event, error) {
	if sigHeader != "valid" {
		return stripego.Event{}, fmt.Errorf("signature mismatch")
	}
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripego.Event{}, err
	}
	return event, nil
}

type fakeEnqueuer struct {
	enqueued []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.enqueued = append(f.enqueued, t)
	return &asynq.TaskInfo{}, nil
}

type fakeSequence struct {
	n int
}

func (f *fakeSequence) NextPaymentCode(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("PAY-TEST-%03d", f.n), nil
}

func (f *fakeSequence) NextEarningCode(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("ERN-TEST-%03d", f.n), nil
}

type testEnv struct {
	svc       Service
	db        *gorm.DB
	processor *fakeProcessor
	enqueuer  *fakeEnqueuer
	cfg       *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.NewTestDB(t,
		&profile.Profile{},
		&tasks.Task{},
		&tasks.TaskParticipant{},
		&Payment{},
		&WebhookEvent{},
		&earnings.Earning{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Escrow.HoldPeriod = 48 * time.Hour

	fees, err := feepolicy.NewService(feepolicy.Params{})
	require.NoError(t, err)

	profiles, err := profile.NewService(profile.Params{
		Node:     node,
		Profiles: repository.ProvideStore[profile.Profile](conn),
	})
	require.NoError(t, err)

	taskSvc, err := tasks.NewService(tasks.Params{
		DB:           conn,
		Tasks:        repository.ProvideStore[tasks.Task](conn),
		Participants: repository.ProvideStore[tasks.TaskParticipant](conn),
	})
	require.NoError(t, err)

	seq := &fakeSequence{}
	earningSvc, err := earnings.NewService(earnings.Params{
		Node:     node,
		Sequence: seq,
		Earnings: repository.ProvideStore[earnings.Earning](conn),
	})
	require.NoError(t, err)

	processor := &fakeProcessor{}
	enqueuer := &fakeEnqueuer{}

	svc, err := NewService(Params{
		DB:        conn,
		Node:      node,
		Config:    cfg,
		Fees:      fees,
		Profiles:  profiles,
		Tasks:     taskSvc,
		Earnings:  earningSvc,
		Payments:  repository.ProvideStore[Payment](conn),
		Events:    repository.ProvideStore[WebhookEvent](conn),
		Processor: processor,
		Enqueuer:  enqueuer,
		Sequence:  seq,
	})
	require.NoError(t, err)

	return &testEnv{
		svc:       svc,
		db:        conn,
		processor: processor,
		enqueuer:  enqueuer,
		cfg:       cfg,
	}
}

func seedEscrowed(t *testing.T, env *testEnv, releaseAt time.Time) *Payment {
	t.Helper()

	scheduled := releaseAt
	escrowedAt := time.Now().Add(-time.Hour)
	p := &Payment{
		ID:                 "pay_1",
		Code:               "PAY-SEED-001",
		TaskID:             "task_1",
		TaskType:           string(feepolicy.TaskTypeSolo),
		UserID:             "user_1",
		AmountCents:        10_000,
		PlatformFeeCents:   300,
		ProcessingFeeCents: 30,
		NetAmountCents:     9_670,
		Status:             StatusEscrowed,
		StripeIntentID:     "pi_seed_1",
		EscrowedAt:         &escrowedAt,
		ReleaseScheduledAt: &scheduled,
	}
	require.NoError(t, env.db.Create(p).Error)
	require.NoError(t, env.db.Create(&tasks.Task{ID: "task_1", Type: p.TaskType, Status: tasks.TaskStatusInProgress}).Error)

	return p
}

func TestReleaseEscrow(t *testing.T) {
	env := newTestEnv(t)
	seedEscrowed(t, env, time.Now().Add(-time.Minute))

	res, err := env.svc.ReleaseEscrow(context.Background(), ReleaseInput{
		PaymentID: "pay_1",
		Reason:    ReasonManualRelease,
	})
	require.NoError(t, err)
	require.Equal(t, int64(10_000), res.ReleasedCents)
	require.Equal(t, []string{"pi_seed_1"}, env.processor.captures)

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusReleased, p.Status)
	require.NotNil(t, p.ReleasedAt)

	var earning earnings.Earning
	require.NoError(t, env.db.First(&earning, "payment_id = ?", "pay_1").Error)
	require.Equal(t, int64(9_670), earning.AmountCents)

	var task tasks.Task
	require.NoError(t, env.db.First(&task, "id = ?", "task_1").Error)
	require.Equal(t, tasks.TaskStatusCompleted, task.Status)
}

func TestReleaseEscrowTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	seedEscrowed(t, env, time.Now().Add(-time.Minute))

	_, err := env.svc.ReleaseEscrow(context.Background(), ReleaseInput{PaymentID: "pay_1", Reason: ReasonManualRelease})
	require.NoError(t, err)

	_, err = env.svc.ReleaseEscrow(context.Background(), ReleaseInput{PaymentID: "pay_1", Reason: ReasonManualRelease})
	require.Error(t, err)

	var count int64
	require.NoError(t, env.db.Model(&earnings.Earning{}).Where("payment_id = ?", "pay_1").Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.Len(t, env.processor.captures, 1)
}

func TestReleaseEscrowNotEligibleYet(t *testing.T) {
	env := newTestEnv(t)
	seedEscrowed(t, env, time.Now().Add(24*time.Hour))

	_, err := env.svc.ReleaseEscrow(context.Background(), ReleaseInput{PaymentID: "pay_1"})
	require.Error(t, err)
	require.Empty(t, env.processor.captures)
}

func TestReleaseEscrowCaptureFailureLeavesStatus(t *testing.T) {
	env := newTestEnv(t)
	seedEscrowed(t, env, time.Now().Add(-time.Minute))
	env.processor.captureErr = fmt.Errorf("card network down")

	_, err := env.svc.ReleaseEscrow(context.Background(), ReleaseInput{PaymentID: "pay_1", Reason: ReasonManualRelease})
	require.Error(t, err)

	// Processor failures surface as plain server errors.
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusInternal, be.Code)

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusEscrowed, p.Status)
}

func TestCreateIntent(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CreateIntent(context.Background(), CreateIntentInput{
		TaskID:      "task_9",
		TaskType:    "solo",
		AmountCents: 10_000,
		UserID:      "user_9",
		Email:       "user9@example.com",
		Phone:       "+15550009999",
	})
	require.NoError(t, err)
	require.False(t, res.Barter)
	require.Equal(t, "cs_test_secret", res.ClientSecret)
	require.Equal(t, int64(300), res.Breakdown.PlatformFeeCents)

	var p Payment
	require.NoError(t, env.db.First(&p, "stripe_intent_id = ?", res.IntentID).Error)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, int64(9_670), p.NetAmountCents)

	var prof profile.Profile
	require.NoError(t, env.db.First(&prof, "user_id = ?", "user_9").Error)
	require.Equal(t, "cus_test", prof.StripeCustomerID)
	require.Equal(t, "+15550009999", prof.Phone)
}

func TestCreateIntentBarterShortCircuits(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CreateIntent(context.Background(), CreateIntentInput{
		TaskID:      "task_b",
		TaskType:    "barter",
		AmountCents: 5_000,
		UserID:      "user_b",
	})
	require.NoError(t, err)
	require.True(t, res.Barter)
	require.Zero(t, env.processor.intents)

	var count int64
	require.NoError(t, env.db.Model(&Payment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateIntentBelowMinimum(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateIntent(context.Background(), CreateIntentInput{
		TaskID:      "task_s",
		TaskType:    "community",
		AmountCents: 50,
		UserID:      "user_s",
	})
	require.Error(t, err)
	require.Zero(t, env.processor.intents)
}

func webhookEvent(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.HandleWebhook(context.Background(), []byte("{}"), "bogus")
	require.Error(t, err)
}

func TestWebhookEscrowsOnCapturable(t *testing.T) {
	env := newTestEnv(t)
	seedPending(t, env)

	payload := webhookEvent(t, "evt_1", "payment_intent.amount_capturable_updated", map[string]interface{}{
		"id": "pi_seed_1",
	})
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusEscrowed, p.Status)
	require.NotNil(t, p.ReleaseScheduledAt)

	require.Len(t, env.enqueuer.enqueued, 1)
	require.Equal(t, "escrow:release", env.enqueuer.enqueued[0].Type())
}

func seedPending(t *testing.T, env *testEnv) {
	t.Helper()

	require.NoError(t, env.db.Create(&Payment{
		ID:                 "pay_1",
		Code:               "PAY-SEED-001",
		TaskID:             "task_1",
		TaskType:           string(feepolicy.TaskTypeSolo),
		UserID:             "user_1",
		AmountCents:        10_000,
		PlatformFeeCents:   300,
		ProcessingFeeCents: 30,
		NetAmountCents:     9_670,
		Status:             StatusPending,
		StripeIntentID:     "pi_seed_1",
	}).Error)
	require.NoError(t, env.db.Create(&tasks.Task{ID: "task_1", Type: "solo", Status: tasks.TaskStatusInProgress}).Error)
}

func TestWebhookSucceededSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	seedPending(t, env)

	payload := webhookEvent(t, "evt_2", "payment_intent.succeeded", map[string]interface{}{
		"id":            "pi_seed_1",
		"latest_charge": map[string]interface{}{"id": "ch_1"},
	})
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusCompleted, p.Status)
	require.Equal(t, "ch_1", p.StripeChargeID)
	require.NotNil(t, p.CompletedAt)

	var count int64
	require.NoError(t, env.db.Model(&earnings.Earning{}).Where("payment_id = ?", "pay_1").Count(&count).Error)
	require.Equal(t, int64(1), count)

	var task tasks.Task
	require.NoError(t, env.db.First(&task, "id = ?", "task_1").Error)
	require.Equal(t, tasks.TaskStatusCompleted, task.Status)
}

func TestWebhookReplayDoesNotDuplicateEarnings(t *testing.T) {
	env := newTestEnv(t)
	seedPending(t, env)

	payload := webhookEvent(t, "evt_3", "payment_intent.succeeded", map[string]interface{}{
		"id": "pi_seed_1",
	})

	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var count int64
	require.NoError(t, env.db.Model(&earnings.Earning{}).Where("payment_id = ?", "pay_1").Count(&count).Error)
	require.Equal(t, int64(1), count)

	var events int64
	require.NoError(t, env.db.Model(&WebhookEvent{}).Count(&events).Error)
	require.Equal(t, int64(1), events)
}

func TestWebhookFailedRecordsReason(t *testing.T) {
	env := newTestEnv(t)
	seedPending(t, env)

	payload := webhookEvent(t, "evt_4", "payment_intent.payment_failed", map[string]interface{}{
		"id":                 "pi_seed_1",
		"last_payment_error": map[string]interface{}{"message": "card declined"},
	})
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusFailed, p.Status)
	require.Equal(t, "card declined", p.FailureReason)
	require.NotNil(t, p.FailedAt)
}

func TestWebhookRequiresAction(t *testing.T) {
	env := newTestEnv(t)
	seedPending(t, env)

	payload := webhookEvent(t, "evt_5", "payment_intent.requires_action", map[string]interface{}{
		"id": "pi_seed_1",
	})
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusRequiresAction, p.Status)
}

func TestWebhookSubscriptionUpdatesProfile(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.db.Create(&profile.Profile{
		ID:               "prof_1",
		UserID:           "user_1",
		StripeCustomerID: "cus_1",
		SubscriptionTier: "free",
	}).Error)

	payload := webhookEvent(t, "evt_6", "customer.subscription.updated", map[string]interface{}{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "active",
		"metadata": map[string]interface{}{"tier": "pro"},
	})
	require.NoError(t, env.svc.HandleWebhook(context.Background(), payload, "valid"))

	var prof profile.Profile
	require.NoError(t, env.db.First(&prof, "id = ?", "prof_1").Error)
	require.Equal(t, "pro", prof.SubscriptionTier)
	require.Equal(t, "active", prof.SubscriptionStatus)
	require.Equal(t, 50, prof.MonthlyTaskLimit)
}

func TestReconcileReleasesOverdue(t *testing.T) {
	env := newTestEnv(t)
	seedEscrowed(t, env, time.Now().Add(-time.Hour))

	require.NoError(t, env.svc.Reconcile(context.Background()))

	var p Payment
	require.NoError(t, env.db.First(&p, "id = ?", "pay_1").Error)
	require.Equal(t, StatusReleased, p.Status)
}

func TestRecordVerifiedPayout(t *testing.T) {
	env := newTestEnv(t)

	task := &tasks.Task{
		ID:                    "task_v",
		Type:                  "shared",
		PlatformFunded:        true,
		EarningPotentialCents: 2_000,
	}
	require.NoError(t, env.db.Create(task).Error)

	paid, err := env.svc.RecordVerifiedPayout(context.Background(), task, "user_v")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, paid.Status)
	require.Equal(t, string(feepolicy.TaskTypeCommunity), paid.TaskType)
	// 7% of $20.00 plus the fixed 30 cents.
	require.Equal(t, int64(140), paid.PlatformFeeCents)
	require.Equal(t, int64(1_830), paid.NetAmountCents)

	var earning earnings.Earning
	require.NoError(t, env.db.First(&earning, "payment_id = ?", paid.ID).Error)
	require.Equal(t, int64(1_830), earning.AmountCents)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusEscrowed))
	require.True(t, CanTransition(StatusEscrowed, StatusReleased))
	require.True(t, CanTransition(StatusPending, StatusCompleted))
	require.False(t, CanTransition(StatusReleased, StatusEscrowed))
	require.False(t, CanTransition(StatusCompleted, StatusPending))
	require.False(t, CanTransition(StatusFailed, StatusCompleted))
}
