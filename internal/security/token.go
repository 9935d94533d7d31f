// Пакет security — криптографические примитивы Election API:
// bcrypt-хеширование паролей, генерация OTP, выпуск и проверка JWT.
//
// Токены подписываются RS256. Публичный ключ публикуется как JWKS
// (/.well-known/jwks.json), проверка идёт через keyfunc поверх того же
// JWKS, что и у внешнего API Gateway.
package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken — токен не прошёл проверку (подпись, срок, issuer, audience).
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// Claims — claims токена Election API.
type Claims struct {
	jwt.RegisteredClaims
	// Email — адрес пользователя
	Email string `json:"email"`
	// Permissions — эффективные разрешения на момент выпуска
	Permissions []string `json:"permissions"`
}

// UserID возвращает числовой идентификатор пользователя из sub.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный sub %q: %w", c.Subject, err)
	}
	return id, nil
}

// TokenConfig — параметры выпуска токенов.
type TokenConfig struct {
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
	KeyID    string
	// PrivateKeyPath — PEM (PKCS#1 или PKCS#8). Пусто — ключ генерируется.
	PrivateKeyPath string
}

// TokenManager выпускает и проверяет JWT.
type TokenManager struct {
	cfg     TokenConfig
	key     *rsa.PrivateKey
	storage jwkset.Storage
	jwks    keyfunc.Keyfunc
	now     func() time.Time
}

// NewTokenManager загружает или генерирует ключ и готовит JWKS.
func NewTokenManager(cfg TokenConfig, logger *slog.Logger) (*TokenManager, error) {
	key, err := loadOrGenerateKey(cfg.PrivateKeyPath, logger)
	if err != nil {
		return nil, err
	}
	return NewTokenManagerWithKey(cfg, key)
}

// NewTokenManagerWithKey создаёт TokenManager с готовым ключом.
func NewTokenManagerWithKey(cfg TokenConfig, key *rsa.PrivateKey) (*TokenManager, error) {
	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: cfg.KeyID,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWK: %w", err)
	}

	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(context.Background(), jwk); err != nil {
		return nil, fmt.Errorf("запись JWK в хранилище: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &TokenManager{
		cfg:     cfg,
		key:     key,
		storage: storage,
		jwks:    k,
		now:     time.Now,
	}, nil
}

// loadOrGenerateKey читает PEM или генерирует ключ на время жизни процесса.
func loadOrGenerateKey(path string, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("EL_JWT_PRIVATE_KEY_PATH не задан, сгенерирован временный ключ: токены не переживут рестарт")
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("генерация RSA-ключа: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение ключа %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("разбор ключа %s: %w", path, err)
	}
	logger.Info("Ключ подписи JWT загружен", slog.String("path", path))
	return key, nil
}

// Issue выпускает токен с sub, email и набором разрешений.
func (m *TokenManager) Issue(userID int64, email string, permissions []string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.cfg.TTL)

	if permissions == nil {
		permissions = []string{}
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:       email,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.cfg.KeyID

	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись через JWKS, срок действия, issuer и audience.
func (m *TokenManager) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.cfg.Leeway),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithTimeFunc(m.now),
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, m.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWKS возвращает публичный набор ключей в формате RFC 7517.
func (m *TokenManager) JWKS(ctx context.Context) (json.RawMessage, error) {
	return m.storage.JSONPublic(ctx)
}
