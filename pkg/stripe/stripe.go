package stripe

import (
	"context"
	"errors"
	"strconv"

	"bittietasks-controlplane/pkg/config"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("stripe", fx.Provide(ProvideProcessor))

// IntentInput carries everything the processor needs to open a hold.
type IntentInput struct {
	AmountCents    int64
	FeeCents       int64
	NetCents       int64
	CustomerID     string
	TaskID         string
	UserID         string
	TaskType       string
	ManualHold     bool
	IdempotencyKey string
}

// IntentResult is the subset of the processor response callers care about.
type IntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// Processor abstracts the card processor. Production talks to Stripe, tests
// swap in a fake.
type Processor interface {
	CreateIntent(ctx context.Context, in IntentInput) (*IntentResult, error)
	Capture(ctx context.Context, intentID string, amountCents int64) error
	Cancel(ctx context.Context, intentID string) error
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)
	ConstructEvent(payload []byte, sigHeader string) (stripego.Event, error)
}

type processor struct {
	webhookSecret string
}

type ProcessorParams struct {
	fx.In
	Config *config.Config
}

func ProvideProcessor(p ProcessorParams) Processor {
	stripego.Key = p.Config.Stripe.SecretKey

	return &processor{
		webhookSecret: p.Config.Stripe.WebhookSecret,
	}
}

func (s *processor) CreateIntent(ctx context.Context, in IntentInput) (*IntentResult, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(in.AmountCents),
		Currency: stripego.String(string(stripego.CurrencyUSD)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx

	if in.ManualHold {
		params.CaptureMethod = stripego.String(string(stripego.PaymentIntentCaptureMethodManual))
	}
	if in.FeeCents > 0 {
		params.ApplicationFeeAmount = stripego.Int64(in.FeeCents)
	}
	if in.CustomerID != "" {
		params.Customer = stripego.String(in.CustomerID)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	params.AddMetadata("task_id", in.TaskID)
	params.AddMetadata("user_id", in.UserID)
	params.AddMetadata("task_type", in.TaskType)
	params.AddMetadata("fee_cents", strconv.FormatInt(in.FeeCents, 10))
	params.AddMetadata("net_cents", strconv.FormatInt(in.NetCents, 10))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}

	return &IntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (s *processor) Capture(ctx context.Context, intentID string, amountCents int64) error {
	params := &stripego.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amountCents > 0 {
		params.AmountToCapture = stripego.Int64(amountCents)
	}

	_, err := paymentintent.Capture(intentID, params)
	if err != nil {
		// A retry after a lost status write finds the intent already
		// captured; that is success for the caller.
		var serr *stripego.Error
		if errors.As(err, &serr) && serr.Code == stripego.ErrorCodePaymentIntentUnexpectedState {
			if pi, gerr := paymentintent.Get(intentID, &stripego.PaymentIntentParams{}); gerr == nil &&
				pi.Status == stripego.PaymentIntentStatusSucceeded {
				return nil
			}
		}
		return err
	}
	return nil
}

func (s *processor) Cancel(ctx context.Context, intentID string) error {
	params := &stripego.PaymentIntentCancelParams{}
	params.Context = ctx

	_, err := paymentintent.Cancel(intentID, params)
	return err
}

func (s *processor) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripego.CustomerParams{
		Email: stripego.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	cus, err := customer.New(params)
	if err != nil {
		return "", err
	}

	return cus.ID, nil
}

func (s *processor) ConstructEvent(payload []byte, sigHeader string) (stripego.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
}
