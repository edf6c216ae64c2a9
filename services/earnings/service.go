package earnings

import (
	"context"

	"bittietasks-controlplane/pkg/db/option"
	"bittietasks-controlplane/pkg/db/pagination"
	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/repository"
	"bittietasks-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Earning sources.
const (
	SourceEscrowRelease    = "escrow_release"
	SourcePaymentCompleted = "payment_completed"
	SourceVerification     = "verification"
)

// RecordInput describes one payout to append.
type RecordInput struct {
	UserID      string
	PaymentID   string
	TaskID      string
	TaskType    string
	Source      string
	AmountCents int64
}

type Service interface {
	// Record appends an earning once per payment id. Calling it again for the
	// same payment is a no-op.
	Record(ctx context.Context, tx *gorm.DB, in RecordInput) error
	List(ctx context.Context, userID string, page pagination.Pagination) ([]*Earning, int64, error)
}

type service struct {
	node     *snowflake.Node
	seq      sequence.Generator
	earnings repository.Repository[Earning]
}

type Params struct {
	fx.In

	Node     *snowflake.Node
	Sequence sequence.Generator
	Earnings repository.Repository[Earning]
}

func NewService(p Params) (Service, error) {
	return &service{
		node:     p.Node,
		seq:      p.Sequence,
		earnings: p.Earnings,
	}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, in RecordInput) error {
	if in.PaymentID == "" || in.UserID == "" {
		return errutil.BadRequest("earning requires payment and user ids", nil)
	}

	repo := s.earnings.WithTrx(tx)

	existing, err := repo.FindOne(ctx, &Earning{PaymentID: in.PaymentID})
	if err != nil {
		return errutil.Internal("failed to check existing earning", err)
	}
	if existing != nil {
		zap.L().Debug("earning already recorded", zap.String("payment_id", in.PaymentID))
		return nil
	}

	code, err := s.seq.NextEarningCode(ctx)
	if err != nil {
		return errutil.Internal("failed to generate earning code", err)
	}

	earning := &Earning{
		ID:          s.node.Generate().String(),
		Code:        code,
		UserID:      in.UserID,
		PaymentID:   in.PaymentID,
		TaskID:      in.TaskID,
		TaskType:    in.TaskType,
		Source:      in.Source,
		AmountCents: in.AmountCents,
	}

	if err := repo.Create(ctx, earning); err != nil {
		// A concurrent writer hit the unique payment_id index first.
		dup, ferr := repo.FindOne(ctx, &Earning{PaymentID: in.PaymentID})
		if ferr == nil && dup != nil {
			return nil
		}
		return errutil.Internal("failed to record earning", err)
	}

	zap.L().Info("earning recorded",
		zap.String("earning_id", earning.ID),
		zap.String("payment_id", in.PaymentID),
		zap.String("user_id", in.UserID),
		zap.Int64("amount_cents", in.AmountCents),
	)

	return nil
}

func (s *service) List(ctx context.Context, userID string, page pagination.Pagination) ([]*Earning, int64, error) {
	total, err := s.earnings.Count(ctx, &Earning{UserID: userID})
	if err != nil {
		return nil, 0, errutil.Internal("failed to count earnings", err)
	}

	rows, err := s.earnings.Find(ctx, &Earning{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.ApplyPagination(page),
	)
	if err != nil {
		return nil, 0, errutil.Internal("failed to list earnings", err)
	}

	return rows, total, nil
}
