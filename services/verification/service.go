package verification

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/featureflags"
	"bittietasks-controlplane/pkg/objstore"
	"bittietasks-controlplane/services/payment"
	"bittietasks-controlplane/services/tasks"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FlagAutoApprove gates the quick-verify auto approval path.
const FlagAutoApprove = "auto_approve_verification"

type VerifyRequest struct {
	TaskID string
	UserID string
	Photo  string // base64 payload, optionally a data URL
	Notes  string
}

type Outcome struct {
	Approved   bool             `json:"approved"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Status     string           `json:"status"`
	Payment    *payment.Payment `json:"payment,omitempty"`
}

type Service interface {
	// AIVerify asks the external verifier to judge the completion claim.
	AIVerify(ctx context.Context, in VerifyRequest) (*Outcome, error)
	// QuickVerify approves a configured fraction of claims without the
	// external call. Only active behind the auto-approve flag.
	QuickVerify(ctx context.Context, in VerifyRequest) (*Outcome, error)
}

type service struct {
	cfg      *config.Config
	tasks    tasks.Service
	payments payment.Service
	verifier Verifier
	photos   objstore.PhotoStore
	flags    featureflags.FeatureFlag
}

type Params struct {
	fx.In

	Config   *config.Config
	Tasks    tasks.Service
	Payments payment.Service
	Verifier Verifier
	Photos   objstore.PhotoStore `optional:"true"`
	Flags    featureflags.FeatureFlag
}

func NewService(p Params) (Service, error) {
	return &service{
		cfg:      p.Config,
		tasks:    p.Tasks,
		payments: p.Payments,
		verifier: p.Verifier,
		photos:   p.Photos,
		flags:    p.Flags,
	}, nil
}

// loadClaim checks the caller is a participant in a verifiable state.
func (s *service) loadClaim(ctx context.Context, in VerifyRequest) (*tasks.Task, *tasks.TaskParticipant, error) {
	t, err := s.tasks.Get(ctx, in.TaskID)
	if err != nil {
		return nil, nil, err
	}

	participant, err := s.tasks.GetParticipant(ctx, in.TaskID, in.UserID)
	if err != nil {
		return nil, nil, err
	}

	switch participant.Status {
	case tasks.ParticipantApplied, tasks.ParticipantAccepted:
	default:
		return nil, nil, errutil.BadRequest(
			fmt.Sprintf("participant is %s, verification needs applied or accepted", participant.Status), nil)
	}

	return t, participant, nil
}

// storePhoto uploads the claim photo and returns its object key and a
// presigned URL the verifier can fetch.
func (s *service) storePhoto(ctx context.Context, in VerifyRequest) (key, url string) {
	if in.Photo == "" || s.photos == nil {
		return "", ""
	}

	raw := in.Photo
	contentType := "image/jpeg"
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ";base64,"); idx > 0 {
			contentType = strings.TrimPrefix(raw[:idx], "data:")
			raw = raw[idx+len(";base64,"):]
		}
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		zap.L().Warn("verification photo is not valid base64", zap.Error(err))
		return "", ""
	}

	key = fmt.Sprintf("verifications/%s/%s/%d", in.TaskID, in.UserID, time.Now().UnixNano())
	if _, err := s.photos.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		zap.L().Error("failed to store verification photo", zap.Error(err))
		return "", ""
	}

	url, err = s.photos.PresignedGet(ctx, key, time.Hour)
	if err != nil {
		zap.L().Warn("failed to presign verification photo", zap.Error(err))
		return key, ""
	}

	return key, url
}

func (s *service) settle(ctx context.Context, t *tasks.Task, participant *tasks.TaskParticipant, in VerifyRequest, approved bool, confidence float64, reasoning, photoKey string) (*Outcome, error) {
	to := tasks.ParticipantPendingReview
	if approved {
		to = tasks.ParticipantVerified
	}

	if err := s.tasks.SetParticipantVerification(ctx, participant.ID,
		[]tasks.ParticipantStatus{tasks.ParticipantApplied, tasks.ParticipantAccepted},
		to, photoKey, in.Notes,
	); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Approved:   approved,
		Confidence: confidence,
		Reasoning:  reasoning,
		Status:     string(to),
	}

	if approved && t.PlatformFunded && t.EarningPotentialCents > 0 {
		paid, err := s.payments.RecordVerifiedPayout(ctx, t, in.UserID)
		if err != nil {
			return nil, err
		}
		outcome.Payment = paid
	}

	zap.L().Info("verification settled",
		zap.String("task_id", in.TaskID),
		zap.String("user_id", in.UserID),
		zap.Bool("approved", approved),
		zap.Float64("confidence", confidence),
	)

	return outcome, nil
}

func (s *service) AIVerify(ctx context.Context, in VerifyRequest) (*Outcome, error) {
	t, participant, err := s.loadClaim(ctx, in)
	if err != nil {
		return nil, err
	}

	photoKey, photoURL := s.storePhoto(ctx, in)

	result, err := s.verifier.Verify(ctx, VerifyInput{
		TaskID:   in.TaskID,
		UserID:   in.UserID,
		PhotoURL: photoURL,
		Notes:    in.Notes,
	})
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, t, participant, in, result.Approved, result.Confidence, result.Reasoning, photoKey)
}

func (s *service) QuickVerify(ctx context.Context, in VerifyRequest) (*Outcome, error) {
	t, participant, err := s.loadClaim(ctx, in)
	if err != nil {
		return nil, err
	}

	photoKey, _ := s.storePhoto(ctx, in)

	approved := false
	reasoning := "queued for manual review"

	flags, err := s.flags.Flags(ctx, in.UserID)
	if err != nil {
		zap.L().Warn("feature flag lookup failed", zap.Error(err))
	} else if enabled, err := flags.IsFeatureEnabled(FlagAutoApprove); err == nil && enabled {
		approved = rand.Float64() < s.cfg.Verification.AutoApproveRate
		if approved {
			reasoning = "auto-approved"
		}
	}

	return s.settle(ctx, t, participant, in, approved, 0, reasoning, photoKey)
}
