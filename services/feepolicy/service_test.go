package feepolicy

import (
	"errors"
	"testing"

	"bittietasks-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(Params{})
	require.NoError(t, err)
	return svc
}

func TestCalculateSolo(t *testing.T) {
	svc := newService(t)

	b := svc.Calculate(TaskTypeSolo, 10_000)
	require.Equal(t, int64(300), b.PlatformFeeCents)
	require.Equal(t, int64(30), b.ProcessingFeeCents)
	require.Equal(t, int64(9_670), b.NetCents)
}

func TestCalculateBarterIsFree(t *testing.T) {
	svc := newService(t)

	b := svc.Calculate(TaskTypeBarter, 10_000)
	require.Equal(t, int64(0), b.PlatformFeeCents)
	require.Equal(t, int64(0), b.ProcessingFeeCents)
	require.Equal(t, int64(10_000), b.NetCents)
}

func TestCalculateConservation(t *testing.T) {
	svc := newService(t)

	types := []TaskType{TaskTypeSolo, TaskTypeCommunity, TaskTypeBarter, TaskTypeCorporate}
	amounts := []int64{200, 500, 1_234, 10_000, 99_999, 1_000_000}

	for _, tt := range types {
		for _, gross := range amounts {
			b := svc.Calculate(tt, gross)
			require.Equal(t, gross, b.PlatformFeeCents+b.ProcessingFeeCents+b.NetCents,
				"type %s gross %d", tt, gross)
			require.GreaterOrEqual(t, b.NetCents, int64(0))
		}
	}
}

func TestCalculateNetNeverNegative(t *testing.T) {
	svc := newService(t)

	b := svc.Calculate(TaskTypeCorporate, 10)
	require.Equal(t, int64(0), b.NetCents)

	b = svc.Calculate(TaskTypeSolo, -500)
	require.Equal(t, int64(0), b.PlatformFeeCents)
	require.Equal(t, int64(0), b.ProcessingFeeCents)
	require.Equal(t, int64(0), b.NetCents)
}

func TestMinimumGrossBoundary(t *testing.T) {
	svc := newService(t)

	for _, tt := range []TaskType{TaskTypeSolo, TaskTypeCommunity, TaskTypeCorporate} {
		min := svc.MinimumGrossCents(tt)

		require.GreaterOrEqual(t, svc.Calculate(tt, min).NetCents, MinNetCents, "type %s", tt)
		require.Less(t, svc.Calculate(tt, min-1).NetCents, MinNetCents, "type %s", tt)
	}

	require.Equal(t, int64(0), svc.MinimumGrossCents(TaskTypeBarter))
}

func TestValidateAmountBelowMinimum(t *testing.T) {
	svc := newService(t)

	err := svc.ValidateAmount(TaskTypeCommunity, 50)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadRequest, be.Code)

	fields := make([]string, 0, len(be.Details))
	for _, d := range be.Details {
		fields = append(fields, d.Field)
	}
	require.Contains(t, fields, "suggestion")

	// The suggested amount must itself pass validation.
	require.NoError(t, svc.ValidateAmount(TaskTypeCommunity, svc.SuggestedMinimumCents(TaskTypeCommunity)))
}

func TestValidateAmountMaximum(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.ValidateAmount(TaskTypeSolo, MaxGrossCents))
	require.Error(t, svc.ValidateAmount(TaskTypeSolo, MaxGrossCents+1))
}

func TestParseTaskTypeAliases(t *testing.T) {
	cases := map[string]TaskType{
		"solo":                TaskTypeSolo,
		"community":           TaskTypeCommunity,
		"shared":              TaskTypeCommunity,
		"barter":              TaskTypeBarter,
		"corporate":           TaskTypeCorporate,
		"corporate_sponsored": TaskTypeCorporate,
	}

	for raw, want := range cases {
		got, err := ParseTaskType(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseTaskType("freelance")
	require.Error(t, err)
}

func TestFormatUSD(t *testing.T) {
	require.Equal(t, "$96.70", FormatUSD(9_670))
	require.Equal(t, "$0.30", FormatUSD(30))
	require.Equal(t, "-$1.05", FormatUSD(-105))
}
