package rediskey

import "fmt"

// Key prefixes shared across services.
const (
	OTPPrefix      = "otp"
	OTPRatePrefix  = "otp:rate"
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildOTPKey returns "otp:{phone}"
func BuildOTPKey(phone string) string {
	return NamespaceKey(OTPPrefix, phone)
}

// BuildOTPRateKey returns "otp:rate:{phone}"
func BuildOTPRateKey(phone string) string {
	return NamespaceKey(OTPRatePrefix, phone)
}
