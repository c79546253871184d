package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two credential families minted by a [Manager].
type Kind string

const (
	// KindAccess marks short-lived per-request credentials.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived credentials backed by a session record.
	KindRefresh Kind = "refresh"
)

// SigningMethod selects the signature algorithm for minted credentials.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Curve25519 (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrMalformed is returned when the input is empty or not a structurally
	// valid credential.
	ErrMalformed = errors.New("malformed credential")
	// ErrSignatureOrExpiry is returned when the signature does not verify or
	// a time-based claim (exp, nbf, iat) fails validation.
	ErrSignatureOrExpiry = errors.New("credential signature or expiry invalid")
	// ErrTypeMismatch is returned when a structurally valid credential of the
	// wrong kind is presented, e.g. a refresh credential where an access
	// credential is expected.
	ErrTypeMismatch = errors.New("credential type mismatch")
)

// Config holds the immutable issuance and verification parameters.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the claim set carried by every minted credential. Kind is the
// verification pivot: access and refresh credentials are never
// interchangeable even when cryptographically valid.
type Claims struct {
	PrincipalID string            `json:"pid"`
	Kind        Kind              `json:"typ"`
	Extra       map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Manager mints and verifies the paired access/refresh credentials.
// Verification is a pure computation: no I/O, no shared mutable state,
// safe for unbounded concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured access credential lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess mints a short-lived access credential for principalID.
// extra carries optional caller claims and may be nil.
func (m *Manager) IssueAccess(principalID string, extra map[string]string) (string, error) {
	return m.issue(principalID, KindAccess, m.config.AccessTTL, extra)
}

// IssueRefresh mints a long-lived refresh credential for principalID.
// The raw value must be hashed before any server-side persistence.
func (m *Manager) IssueRefresh(principalID string) (string, error) {
	return m.issue(principalID, KindRefresh, m.config.RefreshTTL, nil)
}

func (m *Manager) issue(principalID string, kind Kind, ttl time.Duration, extra map[string]string) (string, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", errors.New("principal id required")
	}

	now := m.now()
	claims := Claims{
		PrincipalID: principalID,
		Kind:        kind,
		Extra:       extra,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.method(), claims)

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// VerifyAccess checks signature, expiry, and that the credential kind is
// access. A structurally valid refresh credential is rejected with
// [ErrTypeMismatch].
func (m *Manager) VerifyAccess(raw string) (*Claims, error) {
	return m.verify(raw, KindAccess)
}

// VerifyRefresh is the refresh-kind counterpart of [Manager.VerifyAccess].
// It performs only the stateless checks; session-record validity is the
// store's concern.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	return m.verify(raw, KindRefresh)
}

func (m *Manager) verify(raw string, want Kind) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrSignatureOrExpiry
	}
	if claims.Kind != want {
		return nil, ErrTypeMismatch
	}
	if claims.PrincipalID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fmt.Errorf("%w: %v", ErrSignatureOrExpiry, err)
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
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
