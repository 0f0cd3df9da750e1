package twilio

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSignature_KnownVector(t *testing.T) {
	// Example from Twilio's request validation documentation.
	authToken := "12345"
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+14158675309"},
		"Digits":  {"1234"},
		"From":    {"+14158675309"},
		"To":      {"+18005551212"},
	}

	got := ComputeSignature(authToken, fullURL, params)
	assert.Equal(t, "RSOYDt4T1cUTdK1PDd93/VVr8B8=", got)
}

func TestComputeSignature_SortsKeys(t *testing.T) {
	authToken := "secret"
	fullURL := "https://example.com/twilio/incoming-message"
	params := url.Values{
		"To":   {"+15005550006"},
		"From": {"+15550001111"},
		"Body": {"hello"},
	}

	// Concatenation order must not depend on map iteration order.
	first := ComputeSignature(authToken, fullURL, params)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeSignature(authToken, fullURL, params))
	}
}

func TestValidateSignature(t *testing.T) {
	authToken := "secret-token"
	fullURL := "https://example.com/twilio/message-status"
	params := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"To":            {"+15005550006"},
	}
	signature := ComputeSignature(authToken, fullURL, params)

	t.Run("valid signature accepted", func(t *testing.T) {
		assert.True(t, ValidateSignature(authToken, signature, fullURL, params))
	})

	t.Run("empty signature rejected", func(t *testing.T) {
		assert.False(t, ValidateSignature(authToken, "", fullURL, params))
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		assert.False(t, ValidateSignature("other-token", signature, fullURL, params))
	})

	t.Run("tampered parameter rejected", func(t *testing.T) {
		tampered := url.Values{}
		for k, v := range params {
			tampered[k] = v
		}
		tampered.Set("MessageStatus", "failed")
		assert.False(t, ValidateSignature(authToken, signature, fullURL, tampered))
	})

	t.Run("different URL rejected", func(t *testing.T) {
		assert.False(t, ValidateSignature(authToken, signature, "https://example.com/other", params))
	})
}
