package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTP — 6-значный код из диапазона 100000..999999.
const (
	otpMin   = 100000
	otpRange = 900000
)

// OTPGenerator генерирует одноразовые коды из crypto/rand.
type OTPGenerator struct{}

// NewOTPGenerator создаёт генератор.
func NewOTPGenerator() *OTPGenerator {
	return &OTPGenerator{}
}

// Generate возвращает 6-значный код без ведущих нулей.
func (g *OTPGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("ошибка генерации OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
