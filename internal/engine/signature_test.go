package engine_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sync_engine/internal/domain"
	. "sync_engine/internal/engine"
)

const testSecret = "whsec_test"

func sign(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signedHeader(t *testing.T, secret string, payload []byte, at time.Time) string {
	t.Helper()
	ts := fmt.Sprintf("%d", at.Unix())
	mac := sign(t, secret, []byte(ts+"."+string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, mac)
}

func TestVerify_TimestampedHeader(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_1","type":"customer.updated"}`)

	assert.NoError(t, v.Verify(payload, signedHeader(t, testSecret, payload, time.Now())))
}

func TestVerify_BareHexHeader(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_2"}`)

	assert.NoError(t, v.Verify(payload, sign(t, testSecret, payload)))
}

func TestVerify_WrongSecret(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_3"}`)

	err := v.Verify(payload, signedHeader(t, "whsec_other", payload, time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerify_TamperedPayload(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_4","amount":100}`)
	header := signedHeader(t, testSecret, payload, time.Now())

	tampered := []byte(`{"id":"evt_4","amount":999}`)
	assert.ErrorIs(t, v.Verify(tampered, header), domain.ErrInvalidSignature)
}

func TestVerify_ExpiredTimestamp(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_5"}`)

	header := signedHeader(t, testSecret, payload, time.Now().Add(-10*time.Minute))
	assert.ErrorIs(t, v.Verify(payload, header), domain.ErrSignatureExpired)
}

func TestVerify_FutureTimestamp(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{"id":"evt_6"}`)

	header := signedHeader(t, testSecret, payload, time.Now().Add(10*time.Minute))
	assert.ErrorIs(t, v.Verify(payload, header), domain.ErrSignatureExpired)
}

func TestVerify_WindowBoundary(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	v.SetNow(func() time.Time { return time.Unix(10_000, 0) })

	payload := []byte(`{"id":"evt_7"}`)
	within := signedHeader(t, testSecret, payload, time.Unix(10_000-290, 0))
	assert.NoError(t, v.Verify(payload, within))

	outside := signedHeader(t, testSecret, payload, time.Unix(10_000-301, 0))
	assert.ErrorIs(t, v.Verify(payload, outside), domain.ErrSignatureExpired)
}

func TestVerify_MalformedHeaders(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	payload := []byte(`{}`)

	for _, header := range []string{
		"",
		"t=notanumber,v1=abcd",
		"t=123",
		"v1=abcd",
		"not-hex!",
	} {
		err := v.Verify(payload, header)
		assert.Error(t, err, "header %q", header)
	}
}
