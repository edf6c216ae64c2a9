package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/rediskey"
	"bittietasks-controlplane/services/profile"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	codeTTL    = 5 * time.Minute
	rateWindow = time.Hour
	maxPerHour = 3
	codeDigits = 6
)

type Service interface {
	// Request issues a code for the phone and hands it to the SMS sender.
	Request(ctx context.Context, phone string) error
	// Verify burns the code and marks the phone verified on success.
	Verify(ctx context.Context, phone, code string) error
}

type service struct {
	rdb      *redis.Client
	sender   SMSSender
	profiles profile.Service
}

type Params struct {
	fx.In

	Redis    *redis.Client
	Sender   SMSSender
	Profiles profile.Service
}

func NewService(p Params) (Service, error) {
	return &service{
		rdb:      p.Redis,
		sender:   p.Sender,
		profiles: p.Profiles,
	}, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

func (s *service) Request(ctx context.Context, phone string) error {
	if phone == "" {
		return errutil.BadRequest("phone is required", nil)
	}

	rateKey := rediskey.BuildOTPRateKey(phone)
	count, err := s.rdb.Incr(ctx, rateKey).Result()
	if err != nil {
		return errutil.Internal("failed to apply rate limit", err)
	}
	if count == 1 {
		_ = s.rdb.Expire(ctx, rateKey, rateWindow).Err()
	}
	if count > maxPerHour {
		return errutil.TooManyRequest("too many codes requested, try again within the hour", nil)
	}

	code, err := generateCode()
	if err != nil {
		return errutil.Internal("failed to generate code", err)
	}

	if err := s.rdb.SetEx(ctx, rediskey.BuildOTPKey(phone), code, codeTTL).Err(); err != nil {
		return errutil.Internal("failed to store code", err)
	}

	if err := s.sender.Send(ctx, phone, fmt.Sprintf("Your verification code is %s", code)); err != nil {
		return errutil.BadGateway("failed to send verification code", err)
	}

	zap.L().Info("verification code issued", zap.String("phone", maskPhone(phone)))

	return nil
}

func (s *service) Verify(ctx context.Context, phone, code string) error {
	if phone == "" || code == "" {
		return errutil.BadRequest("phone and code are required", nil)
	}

	key := rediskey.BuildOTPKey(phone)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return errutil.BadRequest("code expired or never issued", nil)
	}
	if err != nil {
		return errutil.Internal("failed to load code", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return errutil.BadRequest("incorrect code", nil)
	}

	_ = s.rdb.Del(ctx, key).Err()

	if err := s.profiles.MarkPhoneVerified(ctx, phone); err != nil {
		return err
	}

	zap.L().Info("phone verified", zap.String("phone", maskPhone(phone)))

	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
