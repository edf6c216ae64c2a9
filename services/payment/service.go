package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/db/option"
	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/pkg/sequence"
	"bittietasks-controlplane/pkg/stripe"
	"bittietasks-controlplane/pkg/taskname"
	queue "bittietasks-controlplane/pkg/task"
	"bittietasks-controlplane/services/earnings"
	"bittietasks-controlplane/services/feepolicy"
	"bittietasks-controlplane/services/profile"
	"bittietasks-controlplane/services/tasks"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateIntentInput struct {
	TaskID      string
	TaskType    string
	AmountCents int64
	Description string
	UserID      string
	Email       string
	Phone       string
}

type CreateIntentResult struct {
	Barter       bool
	PaymentID    string
	IntentID     string
	ClientSecret string
	Breakdown    feepolicy.Breakdown
}

type ReleaseInput struct {
	PaymentID string
	TaskID    string
	Reason    string
}

type ReleaseResult struct {
	PaymentID     string
	ReleasedCents int64
	Reason        string
}

type Service interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error)
	ReleaseEscrow(ctx context.Context, in ReleaseInput) (*ReleaseResult, error)
	// HandleWebhook verifies, dedups and applies one processor event.
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
	// RecordVerifiedPayout writes a completed payment plus its earning for a
	// platform-funded task, bypassing the card flow.
	RecordVerifiedPayout(ctx context.Context, t *tasks.Task, userID string) (*Payment, error)
	// Reconcile releases escrowed payments whose hold period has lapsed.
	// Repairs rows whose scheduled release task was lost.
	Reconcile(ctx context.Context) error
}

type service struct {
	db        *gorm.DB
	node      *snowflake.Node
	cfg       *config.Config
	fees      feepolicy.Service
	profiles  profile.Service
	tasks     tasks.Service
	earnings  earnings.Service
	payments  repository.Repository[Payment]
	events    repository.Repository[WebhookEvent]
	processor stripe.Processor
	enqueuer  queue.Enqueuer
	seq       sequence.Generator
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Fees      feepolicy.Service
	Profiles  profile.Service
	Tasks     tasks.Service
	Earnings  earnings.Service
	Payments  repository.Repository[Payment]
	Events    repository.Repository[WebhookEvent]
	Processor stripe.Processor
	Enqueuer  queue.Enqueuer
	Sequence  sequence.Generator
}

func NewService(p Params) (Service, error) {
	return &service{
		db:        p.DB,
		node:      p.Node,
		cfg:       p.Config,
		fees:      p.Fees,
		profiles:  p.Profiles,
		tasks:     p.Tasks,
		earnings:  p.Earnings,
		payments:  p.Payments,
		events:    p.Events,
		processor: p.Processor,
		enqueuer:  p.Enqueuer,
		seq:       p.Sequence,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error) {
	taskType, err := feepolicy.ParseTaskType(in.TaskType)
	if err != nil {
		return nil, err
	}

	// Barter tasks exchange no money; nothing to authorize.
	if taskType == feepolicy.TaskTypeBarter {
		return &CreateIntentResult{
			Barter:    true,
			Breakdown: s.fees.Calculate(taskType, in.AmountCents),
		}, nil
	}

	if err := s.fees.ValidateAmount(taskType, in.AmountCents); err != nil {
		return nil, err
	}

	breakdown := s.fees.Calculate(taskType, in.AmountCents)

	prof, err := s.profiles.Ensure(ctx, in.UserID, in.Email, in.Phone)
	if err != nil {
		return nil, err
	}

	customerID := prof.StripeCustomerID
	if customerID == "" {
		customerID, err = s.processor.EnsureCustomer(ctx, in.UserID, prof.Email)
		if err != nil {
			return nil, errutil.Internal("failed to create billing customer", err)
		}
		if err := s.profiles.SetStripeCustomer(ctx, prof.ID, customerID); err != nil {
			return nil, err
		}
	}

	paymentID := s.node.Generate().String()

	intent, err := s.processor.CreateIntent(ctx, stripe.IntentInput{
		AmountCents:    in.AmountCents,
		FeeCents:       breakdown.PlatformFeeCents,
		NetCents:       breakdown.NetCents,
		CustomerID:     customerID,
		TaskID:         in.TaskID,
		UserID:         in.UserID,
		TaskType:       string(taskType),
		ManualHold:     true,
		IdempotencyKey: paymentID,
	})
	if err != nil {
		return nil, errutil.Internal("failed to create payment intent", err)
	}

	code, err := s.seq.NextPaymentCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate payment code", err)
	}

	meta, _ := json.Marshal(map[string]string{
		"task_id":   in.TaskID,
		"user_id":   in.UserID,
		"task_type": string(taskType),
	})

	row := &Payment{
		ID:                 paymentID,
		Code:               code,
		TaskID:             in.TaskID,
		TaskType:           string(taskType),
		UserID:             in.UserID,
		AmountCents:        in.AmountCents,
		PlatformFeeCents:   breakdown.PlatformFeeCents,
		ProcessingFeeCents: breakdown.ProcessingFeeCents,
		NetAmountCents:     breakdown.NetCents,
		Status:             StatusPending,
		StripeIntentID:     intent.ID,
		Description:        in.Description,
		Metadata:           datatypes.JSON(meta),
	}

	if err := s.payments.Create(ctx, row); err != nil {
		// The client secret is already usable; the webhook path recovers the
		// row from intent metadata, so surface the secret anyway.
		zap.L().Error("failed to persist payment row",
			zap.String("payment_id", paymentID),
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
	}

	zap.L().Info("payment intent created",
		zap.String("payment_id", paymentID),
		zap.String("intent_id", intent.ID),
		zap.String("task_type", string(taskType)),
		zap.Int64("amount_cents", in.AmountCents),
	)

	return &CreateIntentResult{
		PaymentID:    paymentID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Breakdown:    breakdown,
	}, nil
}

func (s *service) ReleaseEscrow(ctx context.Context, in ReleaseInput) (*ReleaseResult, error) {
	p, err := s.payments.FindOne(ctx, &Payment{ID: in.PaymentID})
	if err != nil {
		return nil, errutil.Internal("failed to load payment", err)
	}
	if p == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}

	if p.Status != StatusEscrowed {
		return nil, errutil.BadRequest(
			fmt.Sprintf("payment is %s, only escrowed payments can be released", p.Status), nil)
	}

	eligible := in.Reason == ReasonManualRelease || in.Reason == ReasonTaskCompleted
	if !eligible && p.ReleaseScheduledAt != nil && !time.Now().Before(*p.ReleaseScheduledAt) {
		eligible = true
	}
	if !eligible {
		return nil, errutil.BadRequest("escrow is not eligible for release yet", nil)
	}

	// Capture the full authorized amount; the platform's cut was already
	// carried on the intent as metadata and fee figures.
	if err := s.processor.Capture(ctx, p.StripeIntentID, p.AmountCents); err != nil {
		return nil, errutil.Internal("failed to capture escrowed funds", err)
	}

	taskID := in.TaskID
	if taskID == "" {
		taskID = p.TaskID
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.casStatus(ctx, tx, p.ID, []Status{StatusEscrowed}, StatusReleased, map[string]interface{}{
			"released_at": now,
			"disputed":    false,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("payment was already released", nil)
		}

		if err := s.earnings.Record(ctx, tx, earnings.RecordInput{
			UserID:      p.UserID,
			PaymentID:   p.ID,
			TaskID:      taskID,
			TaskType:    p.TaskType,
			Source:      earnings.SourceEscrowRelease,
			AmountCents: p.NetAmountCents,
		}); err != nil {
			return err
		}

		if taskID != "" {
			if err := s.tasks.MarkCompleted(ctx, tx, taskID, string(StatusReleased)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := in.Reason
	if reason == "" {
		reason = ReasonAutoRelease
	}

	zap.L().Info("escrow released",
		zap.String("payment_id", p.ID),
		zap.Int64("released_cents", p.AmountCents),
		zap.String("reason", reason),
	)

	return &ReleaseResult{
		PaymentID:     p.ID,
		ReleasedCents: p.AmountCents,
		Reason:        reason,
	}, nil
}

// casStatus moves a payment along a legal edge with a guarded UPDATE. Returns
// false when another writer got there first.
func (s *service) casStatus(ctx context.Context, tx *gorm.DB, paymentID string, from []Status, to Status, extra map[string]interface{}) (bool, error) {
	for _, f := range from {
		if !CanTransition(f, to) {
			return false, errutil.Internal(
				fmt.Sprintf("illegal payment transition %s -> %s", f, to), nil)
		}
	}

	conn := s.db
	if tx != nil {
		conn = tx
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := conn.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status IN ?", paymentID, from).
		Updates(updates)
	if res.Error != nil {
		return false, errutil.Internal("failed to update payment status", res.Error)
	}

	return res.RowsAffected > 0, nil
}

func (s *service) Reconcile(ctx context.Context) error {
	overdue, err := s.payments.Find(ctx, &Payment{Status: StatusEscrowed},
		option.ApplyOperator(option.Condition{
			Field:    "release_scheduled_at",
			Operator: option.LTE,
			Value:    time.Now(),
		}),
	)
	if err != nil {
		return errutil.Internal("failed to list overdue escrows", err)
	}

	// One failed release must not block the rest of the sweep; failures are
	// counted and retried on the next run.
	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(8)
	for _, p := range overdue {
		g.Go(func() error {
			if _, err := s.ReleaseEscrow(ctx, ReleaseInput{PaymentID: p.ID, Reason: ReasonAutoRelease}); err != nil {
				failed.Add(1)
				zap.L().Error("reconcile release failed",
					zap.String("payment_id", p.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("escrow reconcile finished",
		zap.Int("overdue", len(overdue)),
		zap.Int64("failed", failed.Load()),
	)

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("reconcile: %d of %d releases failed", n, len(overdue))
	}
	return nil
}

func (s *service) RecordVerifiedPayout(ctx context.Context, t *tasks.Task, userID string) (*Payment, error) {
	taskType, err := feepolicy.ParseTaskType(t.Type)
	if err != nil {
		return nil, err
	}

	breakdown := s.fees.Calculate(taskType, t.EarningPotentialCents)

	code, err := s.seq.NextPaymentCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate payment code", err)
	}

	now := time.Now()
	row := &Payment{
		ID:                 s.node.Generate().String(),
		Code:               code,
		TaskID:             t.ID,
		TaskType:           string(taskType),
		UserID:             userID,
		AmountCents:        t.EarningPotentialCents,
		PlatformFeeCents:   breakdown.PlatformFeeCents,
		ProcessingFeeCents: breakdown.ProcessingFeeCents,
		NetAmountCents:     breakdown.NetCents,
		Status:             StatusCompleted,
		Description:        fmt.Sprintf("verified payout for task %s", t.ID),
		CompletedAt:        &now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payments.WithTrx(tx).Create(ctx, row); err != nil {
			return errutil.Internal("failed to create payout payment", err)
		}

		return s.earnings.Record(ctx, tx, earnings.RecordInput{
			UserID:      userID,
			PaymentID:   row.ID,
			TaskID:      t.ID,
			TaskType:    string(taskType),
			Source:      earnings.SourceVerification,
			AmountCents: breakdown.NetCents,
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("verified payout recorded",
		zap.String("payment_id", row.ID),
		zap.String("task_id", t.ID),
		zap.Int64("net_cents", breakdown.NetCents),
	)

	return row, nil
}

func (s *service) scheduleRelease(paymentID string, in time.Duration) {
	payload, _ := json.Marshal(releasePayload{PaymentID: paymentID, Reason: ReasonAutoRelease})

	_, err := s.enqueuer.Enqueue(
		asynq.NewTask(taskname.EscrowRelease, payload),
		asynq.ProcessIn(in),
		asynq.Queue("critical"),
		asynq.MaxRetry(5),
		asynq.TaskID(taskname.EscrowRelease+":"+paymentID),
	)
	if err != nil {
		// The daily reconcile sweep picks this row up if the enqueue is lost.
		zap.L().Error("failed to schedule escrow release",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
}
