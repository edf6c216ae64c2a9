package profile

import (
	"context"
	"testing"

	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	conn := testutil.NewTestDB(t, &Profile{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc, err := NewService(Params{
		Node:     node,
		Profiles: repository.ProvideStore[Profile](conn),
	})
	require.NoError(t, err)

	return svc, conn
}

func TestEnsureCreatesLazily(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "user_1", "one@example.com", "+15550001111")
	require.NoError(t, err)
	require.Equal(t, "free", first.SubscriptionTier)
	require.Equal(t, 5, first.MonthlyTaskLimit)
	require.Equal(t, "+15550001111", first.Phone)

	second, err := svc.Ensure(ctx, "user_1", "other@example.com", "")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "one@example.com", second.Email)
	require.Equal(t, "+15550001111", second.Phone)
}

func TestEnsureBackfillsPhone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Ensure(ctx, "user_1", "one@example.com", "")
	require.NoError(t, err)
	require.Empty(t, created.Phone)

	updated, err := svc.Ensure(ctx, "user_1", "one@example.com", "+15550001111")
	require.NoError(t, err)
	require.Equal(t, "+15550001111", updated.Phone)
}

func TestApplySubscriptionEvent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Ensure(ctx, "user_1", "one@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetStripeCustomer(ctx, created.ID, "cus_1"))

	require.NoError(t, svc.ApplySubscriptionEvent(ctx, SubscriptionEvent{
		StripeCustomerID: "cus_1",
		Tier:             "premium",
		Status:           "active",
	}))

	var p Profile
	require.NoError(t, conn.First(&p, "id = ?", created.ID).Error)
	require.Equal(t, "premium", p.SubscriptionTier)
	require.Equal(t, "active", p.SubscriptionStatus)
	require.Equal(t, 150, p.MonthlyTaskLimit)
}

func TestApplySubscriptionEventUnknownProfile(t *testing.T) {
	svc, _ := newTestService(t)

	// Unknown subjects are logged, not failed, so the webhook still acks.
	require.NoError(t, svc.ApplySubscriptionEvent(context.Background(), SubscriptionEvent{
		StripeCustomerID: "cus_missing",
		Status:           "active",
	}))
}

func TestApplySubscriptionEventNoSubject(t *testing.T) {
	svc, _ := newTestService(t)

	require.Error(t, svc.ApplySubscriptionEvent(context.Background(), SubscriptionEvent{Status: "active"}))
}

func TestMarkPhoneVerified(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Ensure(ctx, "user_1", "one@example.com", "+15550001111")
	require.NoError(t, err)

	require.NoError(t, svc.MarkPhoneVerified(ctx, "+15550001111"))

	var p Profile
	require.NoError(t, conn.First(&p, "id = ?", created.ID).Error)
	require.True(t, p.PhoneVerified)

	require.Error(t, svc.MarkPhoneVerified(ctx, "+15559998888"))
}
