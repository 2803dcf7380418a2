// Package auth verifies bearer tokens and extracts the calling principal.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles
const (
	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

type Principal struct {
	Tenant   string
	Role     string
	DriverID string
}

// CanActFor reports whether p may read or change driverID's route.
func (p Principal) CanActFor(driverID string) bool {
	switch p.Role {
	case RoleAdmin, RoleDispatcher:
		return true
	case RoleDriver:
		return p.DriverID != "" && p.DriverID == driverID
	}
	return false
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type Config struct {
	Mode        string
	HMACSecret  string
	JWKSURL     string
	TenantClaim string
	RoleClaim   string
	DriverClaim string
}

// Verifier validates bearer tokens.
// Supports modes: dev (tenant:role[:driverId], no signature), hmac (HS256), jwks (RS256 from JWKS URL).
type Verifier struct {
	cfg       Config
	http      *http.Client
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
	cacheTTL  time.Duration

	// fetchMu serializes JWKS refreshes; lastAttempt and minRefetch bound how
	// often tokens with unknown kids can trigger one.
	fetchMu     sync.Mutex
	lastAttempt time.Time
	minRefetch  time.Duration
	now         func() time.Time
}

func NewVerifier(cfg Config) *Verifier {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "dev"
	}
	if cfg.TenantClaim == "" {
		cfg.TenantClaim = "tenant"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.DriverClaim == "" {
		cfg.DriverClaim = "driver_id"
	}
	return &Verifier{
		cfg:        cfg,
		http:       &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
		minRefetch: 30 * time.Second,
		now:        time.Now,
	}
}

func (v *Verifier) Mode() string { return v.cfg.Mode }

func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	if v.cfg.Mode == "dev" {
		parts := strings.Split(token, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Principal{}, fmt.Errorf("%w: expected tenant:role[:driverId]", ErrInvalidToken)
		}
		p := Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}
		if len(parts) > 2 {
			p.DriverID = parts[2]
		}
		return p, nil
	}

	var opts []jwt.ParserOption
	var keyFunc jwt.Keyfunc
	switch v.cfg.Mode {
	case "hmac":
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return []byte(v.cfg.HMACSecret), nil }
	case "jwks":
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.rsaKey(ctx, kid)
		}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.cfg.Mode)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tenant, _ := claims[v.cfg.TenantClaim].(string)
	role, _ := claims[v.cfg.RoleClaim].(string)
	driver, _ := claims[v.cfg.DriverClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.cfg.TenantClaim)
	}
	role = strings.ToLower(role)
	if role == "" {
		role = RoleDriver
	}
	if driver == "" && role == RoleDriver {
		driver, _ = claims.GetSubject()
	}
	return Principal{Tenant: tenant, Role: role, DriverID: driver}, nil
}

type jwkSet struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// rsaKey returns the key for kid, refetching the JWKS when stale or kid is
// unknown. At most one refetch happens per minRefetch; inside that window a
// stale key is still served and an unknown kid fails without a request.
func (v *Verifier) rsaKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := v.now().Sub(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return k, nil
	}

	v.fetchMu.Lock()
	if v.now().Sub(v.lastAttempt) >= v.minRefetch {
		v.lastAttempt = v.now()
		if err := v.fetchJWKS(ctx); err != nil {
			v.fetchMu.Unlock()
			return nil, err
		}
	}
	v.fetchMu.Unlock()

	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	if v.cfg.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}
	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}
	keys := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = v.now()
	v.mu.Unlock()
	return nil
}
