// Package signature produces the time-bounded credential the image OCR
// service expects in its Authorization header: an HMAC-SHA1 over a canonical
// query string, concatenated with that plaintext string and base64-encoded.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrInvalidValidity is returned when a signature is requested with a
// non-positive validity window.
var ErrInvalidValidity = errors.New("signature validity must be greater than zero")

const nonceMax = 999999999

type cachedToken struct {
	token    string
	issuedAt time.Time
}

// Provider computes and caches signatures. The cache threshold is strictly
// shorter than the validity window, so a token handed out from the cache is
// always still valid for the call that follows.
//
// Process-local and single-writer under the pipeline's sequential model;
// no locking.
type Provider struct {
	appID     string
	secretID  string
	secretKey []byte

	validity time.Duration
	cacheTTL time.Duration

	now   func() time.Time
	nonce func() int64

	cache map[string]cachedToken
}

// New builds a Provider with the given credential triple. validity is the
// lifetime stamped into each signature; cacheTTL is how long a cached token
// is reused and must be shorter than validity.
func New(appID, secretID, secretKey string, validity, cacheTTL time.Duration) *Provider {
	return &Provider{
		appID:     appID,
		secretID:  secretID,
		secretKey: []byte(secretKey),
		validity:  validity,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		nonce:     func() int64 { return rand.Int63n(nonceMax + 1) },
		cache:     make(map[string]cachedToken),
	}
}

// Sign computes a fresh signature for the bucket, valid for the given
// duration. Pure computation plus one clock read; no I/O.
func (p *Provider) Sign(bucket string, validity time.Duration) (string, error) {
	if validity <= 0 {
		return "", fmt.Errorf("%w: got %s", ErrInvalidValidity, validity)
	}
	now := p.now().Unix()
	expiry := now + int64(validity/time.Second)
	text := fmt.Sprintf("a=%s&b=%s&k=%s&e=%d&t=%d&r=%d&u=0&f=",
		p.appID, bucket, p.secretID, expiry, now, p.nonce())
	mac := hmac.New(sha1.New, p.secretKey)
	mac.Write([]byte(text))
	raw := append(mac.Sum(nil), text...)
	return strings.TrimRight(base64.StdEncoding.EncodeToString(raw), " \t\r\n"), nil
}

// Token returns the cached signature for the bucket, regenerating it once
// the cache threshold has elapsed since issuance.
func (p *Provider) Token(bucket string) (string, error) {
	if c, ok := p.cache[bucket]; ok && p.now().Sub(c.issuedAt) < p.cacheTTL {
		return c.token, nil
	}
	token, err := p.Sign(bucket, p.validity)
	if err != nil {
		return "", err
	}
	p.cache[bucket] = cachedToken{token: token, issuedAt: p.now()}
	return token, nil
}
