package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/services/earnings"
	"bittietasks-controlplane/services/feepolicy"
	"bittietasks-controlplane/services/profile"

	stripego "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// intentPayload is the slice of a payment_intent event body we act on.
type intentPayload struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
	LatestCharge struct {
		ID string `json:"id"`
	} `json:"latest_charge"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Metadata map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.processor.ConstructEvent(payload, sigHeader)
	if err != nil {
		return errutil.BadRequest("invalid webhook signature", err)
	}

	seen, err := s.events.FindOne(ctx, &WebhookEvent{ID: event.ID})
	if err != nil {
		return errutil.Internal("failed to check webhook dedup", err)
	}
	if seen != nil {
		zap.L().Debug("webhook event replayed", zap.String("event_id", event.ID))
		return nil
	}
	if err := s.events.Create(ctx, &WebhookEvent{ID: event.ID, Type: string(event.Type)}); err != nil {
		// Lost the insert race to a concurrent delivery of the same event.
		zap.L().Debug("webhook event raced", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	zap.L().Info("webhook event received",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)

	eventType := string(event.Type)
	switch eventType {
	case "payment_intent.amount_capturable_updated":
		return s.onCapturable(ctx, event)
	case "payment_intent.succeeded":
		return s.onSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		return s.onFailed(ctx, event)
	case "payment_intent.requires_action":
		return s.onRequiresAction(ctx, event)
	default:
		if strings.HasPrefix(eventType, "customer.subscription.") ||
			strings.HasPrefix(eventType, "invoice.payment_") {
			return s.onSubscription(ctx, event)
		}
		zap.L().Debug("webhook event ignored", zap.String("event_type", eventType))
		return nil
	}
}

func parseIntent(event stripego.Event) (*intentPayload, error) {
	var ip intentPayload
	if err := json.Unmarshal(event.Data.Raw, &ip); err != nil {
		return nil, errutil.BadRequest("malformed payment_intent payload", err)
	}
	return &ip, nil
}

// findOrRecover loads the payment for an intent. When the pending row was
// lost at create time it is rebuilt from the intent metadata.
func (s *service) findOrRecover(ctx context.Context, ip *intentPayload) (*Payment, error) {
	p, err := s.payments.FindOne(ctx, &Payment{StripeIntentID: ip.ID})
	if err != nil {
		return nil, errutil.Internal("failed to load payment", err)
	}
	if p != nil {
		return p, nil
	}

	userID := ip.Metadata["user_id"]
	rawType := ip.Metadata["task_type"]
	if userID == "" || rawType == "" {
		zap.L().Warn("intent without payment row or metadata", zap.String("intent_id", ip.ID))
		return nil, nil
	}

	taskType, err := feepolicy.ParseTaskType(rawType)
	if err != nil {
		return nil, err
	}
	breakdown := s.fees.Calculate(taskType, ip.Amount)

	code, err := s.seq.NextPaymentCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate payment code", err)
	}

	p = &Payment{
		ID:                 s.node.Generate().String(),
		Code:               code,
		TaskID:             ip.Metadata["task_id"],
		TaskType:           string(taskType),
		UserID:             userID,
		AmountCents:        ip.Amount,
		PlatformFeeCents:   breakdown.PlatformFeeCents,
		ProcessingFeeCents: breakdown.ProcessingFeeCents,
		NetAmountCents:     breakdown.NetCents,
		Status:             StatusPending,
		StripeIntentID:     ip.ID,
	}

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, errutil.Internal("failed to recover payment row", err)
	}

	zap.L().Warn("payment row recovered from intent metadata",
		zap.String("payment_id", p.ID),
		zap.String("intent_id", ip.ID),
	)

	return p, nil
}

func (s *service) onCapturable(ctx context.Context, event stripego.Event) error {
	ip, err := parseIntent(event)
	if err != nil {
		return err
	}

	p, err := s.findOrRecover(ctx, ip)
	if err != nil || p == nil {
		return err
	}

	hold := s.cfg.Escrow.HoldPeriod
	now := time.Now()
	releaseAt := now.Add(hold)

	ok, err := s.casStatus(ctx, nil, p.ID, []Status{StatusPending}, StatusEscrowed, map[string]interface{}{
		"escrowed_at":          now,
		"release_scheduled_at": releaseAt,
	})
	if err != nil {
		return err
	}
	if !ok {
		zap.L().Debug("payment already escrowed", zap.String("payment_id", p.ID))
		return nil
	}

	s.scheduleRelease(p.ID, hold)

	zap.L().Info("payment escrowed",
		zap.String("payment_id", p.ID),
		zap.Time("release_scheduled_at", releaseAt),
	)

	return nil
}

func (s *service) onSucceeded(ctx context.Context, event stripego.Event) error {
	ip, err := parseIntent(event)
	if err != nil {
		return err
	}

	p, err := s.findOrRecover(ctx, ip)
	if err != nil || p == nil {
		return err
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.casStatus(ctx, tx, p.ID,
			[]Status{StatusPending, StatusRequiresAction}, StatusCompleted,
			map[string]interface{}{
				"completed_at":     now,
				"stripe_charge_id": ip.LatestCharge.ID,
			})
		if err != nil {
			return err
		}
		if !ok {
			zap.L().Debug("payment already settled", zap.String("payment_id", p.ID))
			return nil
		}

		if err := s.earnings.Record(ctx, tx, earnings.RecordInput{
			UserID:      p.UserID,
			PaymentID:   p.ID,
			TaskID:      p.TaskID,
			TaskType:    p.TaskType,
			Source:      earnings.SourcePaymentCompleted,
			AmountCents: p.NetAmountCents,
		}); err != nil {
			return err
		}

		if p.TaskID != "" {
			if err := s.tasks.MarkCompleted(ctx, tx, p.TaskID, string(StatusCompleted)); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *service) onFailed(ctx context.Context, event stripego.Event) error {
	ip, err := parseIntent(event)
	if err != nil {
		return err
	}

	p, err := s.findOrRecover(ctx, ip)
	if err != nil || p == nil {
		return err
	}

	reason := "payment failed"
	if ip.LastPaymentError != nil && ip.LastPaymentError.Message != "" {
		reason = ip.LastPaymentError.Message
	}

	_, err = s.casStatus(ctx, nil, p.ID,
		[]Status{StatusPending, StatusEscrowed, StatusRequiresAction}, StatusFailed,
		map[string]interface{}{
			"failed_at":      time.Now(),
			"failure_reason": reason,
		})
	return err
}

func (s *service) onRequiresAction(ctx context.Context, event stripego.Event) error {
	ip, err := parseIntent(event)
	if err != nil {
		return err
	}

	p, err := s.findOrRecover(ctx, ip)
	if err != nil || p == nil {
		return err
	}

	_, err = s.casStatus(ctx, nil, p.ID, []Status{StatusPending}, StatusRequiresAction, nil)
	return err
}

func (s *service) onSubscription(ctx context.Context, event stripego.Event) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return errutil.BadRequest("malformed subscription payload", err)
	}

	status := sub.Status
	if status == "" && string(event.Type) == "invoice.payment_failed" {
		status = "past_due"
	}

	return s.profiles.ApplySubscriptionEvent(ctx, profile.SubscriptionEvent{
		UserID:           sub.Metadata["user_id"],
		StripeCustomerID: sub.Customer,
		Tier:             sub.Metadata["tier"],
		Status:           status,
	})
}
