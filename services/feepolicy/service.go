package feepolicy

import (
	"fmt"

	"bittietasks-controlplane/pkg/errutil"

	"go.uber.org/fx"
)

const (
	// MinNetCents is the floor a participant must clear after fees.
	MinNetCents int64 = 100
	// MaxGrossCents caps a single transaction at $10,000.
	MaxGrossCents int64 = 1_000_000
)

// table is the one authoritative fee table. Every payment-creating path goes
// through this service; nothing else may hard-code a rate.
var table = map[TaskType]Structure{
	TaskTypeSolo: {
		Type:            TaskTypeSolo,
		FeeBasisPoints:  300,
		ProcessingCents: 30,
		Description:     "Solo task, 3% platform fee",
	},
	TaskTypeCommunity: {
		Type:            TaskTypeCommunity,
		FeeBasisPoints:  700,
		ProcessingCents: 30,
		Description:     "Community task, 7% platform fee",
	},
	TaskTypeBarter: {
		Type:            TaskTypeBarter,
		FeeBasisPoints:  0,
		ProcessingCents: 0,
		Description:     "Barter exchange, no fees",
	},
	TaskTypeCorporate: {
		Type:            TaskTypeCorporate,
		FeeBasisPoints:  1500,
		ProcessingCents: 30,
		Description:     "Corporate sponsored task, 15% platform fee",
	},
}

type Service interface {
	Structure(taskType TaskType) Structure
	Calculate(taskType TaskType, grossCents int64) Breakdown
	MinimumGrossCents(taskType TaskType) int64
	SuggestedMinimumCents(taskType TaskType) int64
	ValidateAmount(taskType TaskType, grossCents int64) error
}

type service struct{}

type Params struct {
	fx.In
}

func NewService(p Params) (Service, error) {
	return &service{}, nil
}

func (s *service) Structure(taskType TaskType) Structure {
	return table[taskType]
}

// Calculate splits a gross amount into platform fee, processing fee and net.
// Platform fee rounds half up on the cent; net is clamped at zero.
func (s *service) Calculate(taskType TaskType, grossCents int64) Breakdown {
	fs := table[taskType]

	platform := (grossCents*fs.FeeBasisPoints + 5_000) / 10_000
	if grossCents <= 0 {
		platform = 0
	}

	processing := fs.ProcessingCents
	if grossCents <= 0 {
		processing = 0
	}

	net := grossCents - platform - processing
	if net < 0 {
		net = 0
	}

	return Breakdown{
		TaskType:           taskType,
		GrossCents:         grossCents,
		PlatformFeeCents:   platform,
		ProcessingFeeCents: processing,
		NetCents:           net,
	}
}

// MinimumGrossCents inverts Calculate: the smallest gross whose net clears
// MinNetCents. Barter carries no fees and has no minimum.
func (s *service) MinimumGrossCents(taskType TaskType) int64 {
	fs := table[taskType]
	if fs.FeeBasisPoints == 0 && fs.ProcessingCents == 0 {
		return 0
	}

	// Closed-form candidate, then walk up over the rounding boundary.
	gross := (MinNetCents + fs.ProcessingCents) * 10_000 / (10_000 - fs.FeeBasisPoints)
	for s.Calculate(taskType, gross).NetCents < MinNetCents {
		gross++
	}
	return gross
}

// SuggestedMinimumCents is 10% above the minimum, rounded up to the cent.
func (s *service) SuggestedMinimumCents(taskType TaskType) int64 {
	min := s.MinimumGrossCents(taskType)
	return (min*11 + 9) / 10
}

func (s *service) ValidateAmount(taskType TaskType, grossCents int64) error {
	min := s.MinimumGrossCents(taskType)

	if grossCents < min {
		return errutil.BadRequest(
			fmt.Sprintf("amount %s is below the %s minimum of %s",
				FormatUSD(grossCents), taskType, FormatUSD(min)),
			nil,
			errutil.WithDetails(
				errutil.Detail{Field: "minimum", Message: FormatUSD(min)},
				errutil.Detail{Field: "suggestion", Message: FormatUSD(s.SuggestedMinimumCents(taskType))},
			),
		)
	}

	if grossCents > MaxGrossCents {
		return errutil.BadRequest(
			fmt.Sprintf("amount %s exceeds the maximum of %s",
				FormatUSD(grossCents), FormatUSD(MaxGrossCents)),
			nil,
			errutil.WithDetails(
				errutil.Detail{Field: "maximum", Message: FormatUSD(MaxGrossCents)},
			),
		)
	}

	return nil
}
