package otp

import (
	"context"

	"go.uber.org/zap"
)

// SMSSender delivers one text message. Production wires the gateway behind
// the signed /api/sms-hook; local runs use the logging sender.
type SMSSender interface {
	Send(ctx context.Context, phone, body string) error
}

type logSender struct{}

func NewLogSender() SMSSender {
	return &logSender{}
}

func (logSender) Send(ctx context.Context, phone, body string) error {
	zap.L().Info("sms send",
		zap.String("phone", maskPhone(phone)),
		zap.Int("body_len", len(body)),
	)
	return nil
}
