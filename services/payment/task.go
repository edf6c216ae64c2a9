package payment

import (
	"context"
	"encoding/json"
	"errors"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type releasePayload struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

func RegisterTaskHandlers(mux *asynq.ServeMux, svc Service) {
	mux.HandleFunc(taskname.EscrowRelease, handleEscrowRelease(svc))
	mux.HandleFunc(taskname.ReconcileRun, handleReconcile(svc))
}

func handleEscrowRelease(svc Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p releasePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}

		_, err := svc.ReleaseEscrow(ctx, ReleaseInput{PaymentID: p.PaymentID, Reason: p.Reason})
		if err != nil {
			var be errutil.BaseError
			if errors.As(err, &be) {
				switch be.Code {
				case errutil.StatusNotFound, errutil.StatusBadRequest, errutil.StatusConflict:
					// Terminal: the payment settled or failed before the hold
					// elapsed. Retrying cannot change that.
					zap.L().Info("scheduled release skipped",
						zap.String("payment_id", p.PaymentID),
						zap.String("reason", be.Message),
					)
					return nil
				}
			}
			return err
		}

		return nil
	}
}

func handleReconcile(svc Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return svc.Reconcile(ctx)
	}
}
