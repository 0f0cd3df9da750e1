package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// SignatureHeader is the request header Twilio places its webhook
// signature in.
const SignatureHeader = "X-Twilio-Signature"

// ComputeSignature computes the expected X-Twilio-Signature value for a
// webhook request: the full request URL concatenated with every POST
// parameter as key immediately followed by value, keys sorted ascending,
// HMAC-SHA1 keyed by the account's auth token, base64-encoded.
// Parameter values are the decoded form values; no URL-encoding is applied
// before hashing. See https://www.twilio.com/docs/usage/security#validating-requests
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		for _, v := range params[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether signature matches the expected value
// for the given URL and form parameters. The comparison is constant time.
// An empty signature never validates.
func ValidateSignature(authToken, signature, fullURL string, params url.Values) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(signature), []byte(expected))
}
