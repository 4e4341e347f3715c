package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a single shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const minSecretLength = 32

var (
	// ErrExpired is returned when a token is correctly signed but past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for tokens that cannot be decoded, fail signature checks
	// or lack required claims.
	ErrMalformed = errors.New("token malformed")
	// ErrUnsupported is returned for tokens signed with an algorithm the manager does not accept.
	ErrUnsupported = errors.New("token unsupported")
)

// Config holds token lifetimes and key material. A zero SigningMethod means HS256.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// Secret is the HS256 shared secret or the Ed25519 private key (raw or PEM).
	Secret    []byte
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the claim set shared by both token kinds. Refresh tokens leave
// MemberID and Role empty.
type Claims struct {
	MemberID int64  `json:"memberId,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Pair is the result of a single issuance.
type Pair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager signs and verifies tokens. It is immutable after construction and safe
// for concurrent use.
type Manager struct {
	config  Config
	signKey interface{}
	verKey  interface{}
}

// NewManager validates cfg and resolves key material. Any error here is a startup
// misconfiguration.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < minSecretLength {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minSecretLength)
		}
		m.signKey = cfg.Secret
		m.verKey = cfg.Secret
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.Secret)
		if err != nil {
			return nil, err
		}
		m.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verKey = pub
		} else {
			m.verKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Leeway returns the clock skew tolerated past a token's expiry.
func (m *Manager) Leeway() time.Duration { return m.config.Leeway }

// Issue signs a fresh access/refresh pair for the given identity.
func (m *Manager) Issue(subject string, memberID int64, role string) (Pair, error) {
	if strings.TrimSpace(subject) == "" {
		return Pair{}, errors.New("subject required")
	}

	now := m.config.Now()
	accessExp := now.Add(m.config.AccessTTL)
	refreshExp := now.Add(m.config.RefreshTTL)

	access, err := m.sign(Claims{
		MemberID:         memberID,
		Role:             role,
		RegisteredClaims: m.registered(subject, now, accessExp),
	})
	if err != nil {
		return Pair{}, err
	}

	refresh, err := m.sign(Claims{
		RegisteredClaims: m.registered(subject, now, refreshExp),
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess verifies signature and expiry and requires the member id and role claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr, m.parserOptions()...)
	if err != nil {
		return nil, err
	}
	if claims.MemberID == 0 || claims.Role == "" {
		return nil, fmt.Errorf("%w: access token without member id or role", ErrMalformed)
	}
	return claims, nil
}

// ParseRefresh verifies signature and expiry of a refresh token.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, m.parserOptions()...)
}

// ParseIgnoringExpiry verifies the signature but skips time-based claim validation.
// It is meant for identification only, never for authorization.
func (m *Manager) ParseIgnoringExpiry(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, jwt.WithoutClaimsValidation())
}

func (m *Manager) parserOptions() []jwt.ParserOption {
	options := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	return options
}

func (m *Manager) parse(tokenStr string, options ...jwt.ParserOption) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("%w: signing algorithm %s", ErrUnsupported, t.Method.Alg())
		}
		return m.verKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (m *Manager) registered(subject string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (m *Manager) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(m.method(), claims).SignedString(m.signKey)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
