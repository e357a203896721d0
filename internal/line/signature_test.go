package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_MatchesHMACSHA256Base64(t *testing.T) {
	body := []byte(`{"destination":"U0","events":[]}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign(body, "secret"))
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"events":[]}`),
		[]byte(`{"destination":"Uabc","events":[{"type":"message"}]}`),
		[]byte("こんにちは"),
		{},
	}
	for _, body := range bodies {
		sig := Sign(body, "channel-secret")
		assert.True(t, VerifySignature(body, sig, "channel-secret"), "body %q", body)
	}
}

func TestVerifySignature_MutatedBody(t *testing.T) {
	body := []byte(`{"events":[{"type":"message","message":{"text":"hi"}}]}`)
	sig := Sign(body, "channel-secret")

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.False(t, VerifySignature(mutated, sig, "channel-secret"), "flipped byte %d", i)
	}
	assert.False(t, VerifySignature(append(body, ' '), sig, "channel-secret"), "appended byte")
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"events":[]}`)
	assert.False(t, VerifySignature(body, Sign(body, "a"), "b"))
}

func TestVerifySignature_EmptyInputs(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, VerifySignature(body, "", "secret"), "empty signature")
	assert.False(t, VerifySignature(body, Sign(body, ""), ""), "empty secret")
	assert.False(t, VerifySignature(body, "not base64!!", "secret"), "garbage signature")
}
