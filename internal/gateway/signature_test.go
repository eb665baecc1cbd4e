package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured","payload":{}}`)

	sig := WebhookSignature(secret, body)
	assert.True(t, VerifyWebhookSignature(secret, body, sig))
}

func TestVerifyWebhookSignatureRejectsTampering(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured"}`)
	sig := WebhookSignature(secret, body)

	// tampered body
	assert.False(t, VerifyWebhookSignature(secret, []byte(`{"event":"payment.failed"}`), sig))
	// wrong secret
	assert.False(t, VerifyWebhookSignature("other_secret", body, sig))
	// garbage signature
	assert.False(t, VerifyWebhookSignature(secret, body, "deadbeef"))
	assert.False(t, VerifyWebhookSignature(secret, body, ""))
}

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "key_secret"
	sig := PaymentSignature(secret, "order_123", "pay_456")

	assert.True(t, VerifyPaymentSignature(secret, "order_123", "pay_456", sig))
	assert.False(t, VerifyPaymentSignature(secret, "order_123", "pay_999", sig))
	assert.False(t, VerifyPaymentSignature(secret, "order_999", "pay_456", sig))
	assert.False(t, VerifyPaymentSignature("wrong", "order_123", "pay_456", sig))
}

// The signature binds the order/payment pair in a fixed order: swapping the
// two must not verify.
func TestPaymentSignatureOrderMatters(t *testing.T) {
	secret := "key_secret"
	sig := PaymentSignature(secret, "a", "b")
	assert.False(t, VerifyPaymentSignature(secret, "b", "a", sig))
}
