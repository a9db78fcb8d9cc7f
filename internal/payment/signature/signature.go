// Package signature verifies the two HMAC-SHA256 signatures the gateway
// produces: the callback confirmation handed to the paying client and the
// webhook payload signature. Both comparisons are constant-time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"examreg/pkg/derrors"
)

// VerifyCallback checks the signature the client carries back after paying:
// HMAC-SHA256 over "<orderID>|<paymentID>" with the gateway key secret,
// hex-encoded.
func VerifyCallback(orderID, paymentID, signature, keySecret string) error {
	expected := compute([]byte(orderID+"|"+paymentID), keySecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return derrors.New(derrors.CodeInvalidSignature, "payment signature mismatch")
	}
	return nil
}

// VerifyWebhook checks the signature header against the raw request body
// with the dedicated webhook secret.
func VerifyWebhook(rawBody []byte, signature, webhookSecret string) error {
	if signature == "" {
		return derrors.New(derrors.CodeInvalidSignature, "missing webhook signature")
	}
	expected := compute(rawBody, webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return derrors.New(derrors.CodeInvalidSignature, "webhook signature mismatch")
	}
	return nil
}

// Sign computes the callback signature. Tests and the fake gateway use it to
// produce valid confirmations.
func Sign(orderID, paymentID, keySecret string) string {
	return compute([]byte(orderID+"|"+paymentID), keySecret)
}

// SignWebhook computes a webhook body signature.
func SignWebhook(rawBody []byte, webhookSecret string) string {
	return compute(rawBody, webhookSecret)
}

func compute(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
