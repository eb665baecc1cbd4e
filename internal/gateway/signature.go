package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the gateway's HMAC over the raw webhook body.
const SignatureHeader = "X-Razorpay-Signature"

// WebhookSignature computes the hex HMAC-SHA256 of a raw webhook body.
func WebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the signature header against a locally
// computed HMAC of the raw body. Timing-safe; must pass before the payload
// is parsed or any side effect runs.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := WebhookSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PaymentSignature computes the client-confirmation HMAC over
// orderID + "|" + paymentID. Order matters.
func PaymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature recomputes the payment signature and compares it
// timing-safely against the client-supplied value.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	expected := PaymentSignature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
