package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher — хеширование паролей через bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт хешер. cost == 0 — bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash возвращает bcrypt-дайджест пароля.
func (h *BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	return string(digest), nil
}

// Verify сравнивает пароль с дайджестом. Некорректный дайджест — несовпадение.
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
