package profile

import (
	"context"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Ensure(ctx context.Context, userID, email, phone string) (*Profile, error)
	SetStripeCustomer(ctx context.Context, profileID, customerID string) error
	ApplySubscriptionEvent(ctx context.Context, ev SubscriptionEvent) error
	MarkPhoneVerified(ctx context.Context, phone string) error
}

type service struct {
	node     *snowflake.Node
	profiles repository.Repository[Profile]
}

type Params struct {
	fx.In

	Node     *snowflake.Node
	Profiles repository.Repository[Profile]
}

func NewService(p Params) (Service, error) {
	return &service{
		node:     p.Node,
		profiles: p.Profiles,
	}, nil
}

func (s *service) Get(ctx context.Context, userID string) (*Profile, error) {
	existing, err := s.profiles.FindOne(ctx, &Profile{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load profile", err)
	}
	if existing == nil {
		return nil, errutil.NotFound("profile not found", nil)
	}
	return existing, nil
}

// Ensure returns the profile for userID, creating one from the auth record
// when it does not exist yet. The phone claim is backfilled onto rows created
// before the token carried one; code verification looks profiles up by phone.
func (s *service) Ensure(ctx context.Context, userID, email, phone string) (*Profile, error) {
	existing, err := s.profiles.FindOne(ctx, &Profile{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load profile", err)
	}
	if existing != nil {
		if phone != "" && existing.Phone == "" {
			if err := s.profiles.Update(ctx, existing.ID, map[string]interface{}{
				"phone": phone,
			}); err != nil {
				return nil, errutil.Internal("failed to store phone", err)
			}
			existing.Phone = phone
		}
		return existing, nil
	}

	created := &Profile{
		ID:               s.node.Generate().String(),
		UserID:           userID,
		Email:            email,
		Phone:            phone,
		SubscriptionTier: "free",
		MonthlyTaskLimit: tierLimits["free"],
	}

	if err := s.profiles.Create(ctx, created); err != nil {
		// Lost a create race; the other writer's row wins.
		existing, ferr := s.profiles.FindOne(ctx, &Profile{UserID: userID})
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, errutil.Internal("failed to create profile", err)
	}

	zap.L().Info("profile created",
		zap.String("profile_id", created.ID),
		zap.String("user_id", userID),
	)

	return created, nil
}

func (s *service) SetStripeCustomer(ctx context.Context, profileID, customerID string) error {
	if err := s.profiles.Update(ctx, profileID, map[string]interface{}{
		"stripe_customer_id": customerID,
	}); err != nil {
		return errutil.Internal("failed to store billing customer", err)
	}
	return nil
}

// ApplySubscriptionEvent mutates tier/status/limits from a billing webhook.
// The row is located by user id when present, else by customer handle.
func (s *service) ApplySubscriptionEvent(ctx context.Context, ev SubscriptionEvent) error {
	query := &Profile{}
	switch {
	case ev.UserID != "":
		query.UserID = ev.UserID
	case ev.StripeCustomerID != "":
		query.StripeCustomerID = ev.StripeCustomerID
	default:
		return errutil.BadRequest("subscription event carries no subject", nil)
	}

	existing, err := s.profiles.FindOne(ctx, query)
	if err != nil {
		return errutil.Internal("failed to load profile", err)
	}
	if existing == nil {
		zap.L().Warn("subscription event for unknown profile",
			zap.String("user_id", ev.UserID),
			zap.String("customer_id", ev.StripeCustomerID),
		)
		return nil
	}

	limit := ev.MonthlyTaskLimit
	if limit == 0 {
		if l, ok := tierLimits[ev.Tier]; ok {
			limit = l
		} else {
			limit = existing.MonthlyTaskLimit
		}
	}

	updates := map[string]interface{}{
		"subscription_status": ev.Status,
		"monthly_task_limit":  limit,
	}
	if ev.Tier != "" {
		updates["subscription_tier"] = ev.Tier
	}

	if err := s.profiles.Update(ctx, existing.ID, updates); err != nil {
		return errutil.Internal("failed to apply subscription event", err)
	}

	zap.L().Info("subscription updated",
		zap.String("profile_id", existing.ID),
		zap.String("tier", ev.Tier),
		zap.String("status", ev.Status),
	)

	return nil
}

func (s *service) MarkPhoneVerified(ctx context.Context, phone string) error {
	existing, err := s.profiles.FindOne(ctx, &Profile{Phone: phone})
	if err != nil {
		return errutil.Internal("failed to load profile", err)
	}
	if existing == nil {
		return errutil.NotFound("no profile for phone", nil)
	}

	return s.profiles.Update(ctx, existing.ID, map[string]interface{}{
		"phone_verified": true,
	})
}
