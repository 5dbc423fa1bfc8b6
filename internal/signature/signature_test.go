package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestProvider(clock *time.Time) *Provider {
	p := New("10001", "sid", "skey", 600*time.Second, 300*time.Second)
	p.now = func() time.Time { return *clock }
	p.nonce = func() int64 { return 424242 }
	return p
}

func TestSignRejectsNonPositiveValidity(t *testing.T) {
	clock := time.Unix(1767225600, 0)
	p := newTestProvider(&clock)
	for _, v := range []time.Duration{0, -time.Second} {
		if _, err := p.Sign("test", v); !errors.Is(err, ErrInvalidValidity) {
			t.Errorf("Sign with validity %v: got %v, want ErrInvalidValidity", v, err)
		}
	}
}

func TestSignFormat(t *testing.T) {
	clock := time.Unix(1767225600, 0)
	p := newTestProvider(&clock)
	token, err := p.Sign("memo-bucket", 600*time.Second)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64: %v", err)
	}
	if len(decoded) <= sha1.Size {
		t.Fatalf("decoded token too short: %d bytes", len(decoded))
	}
	text := string(decoded[sha1.Size:])
	want := fmt.Sprintf("a=10001&b=memo-bucket&k=sid&e=%d&t=%d&r=424242&u=0&f=",
		clock.Unix()+600, clock.Unix())
	if text != want {
		t.Errorf("canonical string = %q, want %q", text, want)
	}
	mac := hmac.New(sha1.New, []byte("skey"))
	mac.Write([]byte(text))
	if !hmac.Equal(decoded[:sha1.Size], mac.Sum(nil)) {
		t.Error("embedded digest does not verify against the canonical string")
	}
}

func TestTokenReusedWithinCacheThreshold(t *testing.T) {
	clock := time.Unix(1767225600, 0)
	p := newTestProvider(&clock)
	first, err := p.Token("test")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	clock = clock.Add(299 * time.Second)
	second, err := p.Token("test")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != second {
		t.Error("token regenerated inside the cache threshold")
	}
}

func TestTokenRegeneratedAfterThreshold(t *testing.T) {
	clock := time.Unix(1767225600, 0)
	p := newTestProvider(&clock)
	first, err := p.Token("test")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	clock = clock.Add(301 * time.Second)
	second, err := p.Token("test")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first == second {
		t.Error("token not regenerated after the cache threshold")
	}
}

func TestTokenCacheIsPerBucket(t *testing.T) {
	clock := time.Unix(1767225600, 0)
	p := newTestProvider(&clock)
	a, err := p.Token("bucket-a")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	b, err := p.Token("bucket-b")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if a == b {
		t.Error("distinct buckets produced the identical token")
	}
}
