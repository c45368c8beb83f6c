package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sync_engine/internal/domain"
)

// SignatureVerifier checks the MAC the external service computes over the
// raw webhook body. Two header shapes are accepted:
//
//	t=<unix seconds>,v1=<hex mac>   MAC over "<t>.<body>", freshness enforced
//	<hex mac>                       MAC over the body alone, no freshness
//
// Comparison is constant-time in both shapes.
type SignatureVerifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

func NewSignatureVerifier(secret string, window time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		secret: []byte(secret),
		window: window,
		now:    time.Now,
	}
}

func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.ErrInvalidSignature
	}

	if !strings.Contains(header, "=") {
		return v.verifyMAC(payload, header)
	}

	var (
		ts  string
		mac string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return domain.ErrInvalidSignature
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			mac = val
		}
	}
	if ts == "" || mac == "" {
		return domain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedAt := time.Unix(unix, 0)
	age := v.now().Sub(signedAt)
	if age > v.window || age < -v.window {
		return domain.ErrSignatureExpired
	}

	signed := fmt.Sprintf("%s.%s", ts, payload)
	return v.verifyMAC([]byte(signed), mac)
}

func (v *SignatureVerifier) verifyMAC(signed []byte, macHex string) error {
	got, err := hex.DecodeString(macHex)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(signed)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}
