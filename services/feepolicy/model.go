package feepolicy

import (
	"fmt"

	"bittietasks-controlplane/pkg/errutil"
)

// TaskType is the single vocabulary for task categories. Legacy clients still
// send "shared" and "corporate_sponsored"; ParseTaskType folds those in.
type TaskType string

const (
	TaskTypeSolo      TaskType = "solo"
	TaskTypeCommunity TaskType = "community"
	TaskTypeBarter    TaskType = "barter"
	TaskTypeCorporate TaskType = "corporate"
)

var aliases = map[string]TaskType{
	"solo":                TaskTypeSolo,
	"community":           TaskTypeCommunity,
	"shared":              TaskTypeCommunity,
	"barter":              TaskTypeBarter,
	"corporate":           TaskTypeCorporate,
	"corporate_sponsored": TaskTypeCorporate,
}

func ParseTaskType(s string) (TaskType, error) {
	t, ok := aliases[s]
	if !ok {
		return "", errutil.BadRequest(fmt.Sprintf("unknown task type %q", s), nil)
	}
	return t, nil
}

// Structure is one row of the fee table.
type Structure struct {
	Type             TaskType `json:"type"`
	FeeBasisPoints   int64    `json:"fee_basis_points"`
	ProcessingCents  int64    `json:"processing_fee_cents"`
	Description      string   `json:"description"`
}

// Breakdown is the result of applying the fee table to a gross amount.
// All figures are integer cents.
type Breakdown struct {
	TaskType           TaskType `json:"task_type"`
	GrossCents         int64    `json:"gross_cents"`
	PlatformFeeCents   int64    `json:"platform_fee_cents"`
	ProcessingFeeCents int64    `json:"processing_fee_cents"`
	NetCents           int64    `json:"net_cents"`
}

// Formatted renders the breakdown as display strings, two decimals, USD.
func (b Breakdown) Formatted() map[string]string {
	return map[string]string{
		"gross":          FormatUSD(b.GrossCents),
		"platform_fee":   FormatUSD(b.PlatformFeeCents),
		"processing_fee": FormatUSD(b.ProcessingFeeCents),
		"net":            FormatUSD(b.NetCents),
	}
}

func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
