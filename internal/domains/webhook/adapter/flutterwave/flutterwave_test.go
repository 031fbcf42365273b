package flutterwave

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/domains/webhook/model"
)

const chargeCompletedBody = `{
	"event": "charge.completed",
	"data": {
		"id": 128735,
		"tx_ref": "order-555",
		"flw_ref": "FLW-MOCK-9921",
		"amount": 149.99,
		"currency": "USD",
		"status": "successful",
		"created_at": "2026-08-20T09:00:00.000Z",
		"customer": {"email": "buyer@example.com"}
	}
}`

func TestVerifySignature(t *testing.T) {
	a := New()
	body := []byte(chargeCompletedBody)
	secret := "flw-secret-hash"
	sum := sha256.Sum256([]byte(secret))
	hashed := hex.EncodeToString(sum[:])

	t.Run("sha256 of secret accepted", func(t *testing.T) {
		headers := map[string]string{"verif-hash": hashed}
		assert.True(t, a.VerifySignature(body, headers, []string{secret}))
	})

	t.Run("raw secret accepted", func(t *testing.T) {
		headers := map[string]string{"verif-hash": secret}
		assert.True(t, a.VerifySignature(body, headers, []string{secret}))
	})

	t.Run("rotated secret accepted", func(t *testing.T) {
		headers := map[string]string{"verif-hash": hashed}
		assert.True(t, a.VerifySignature(body, headers, []string{"new-secret", secret}))
	})

	t.Run("wrong hash rejected", func(t *testing.T) {
		headers := map[string]string{"verif-hash": "deadbeef"}
		assert.False(t, a.VerifySignature(body, headers, []string{secret}))
	})

	t.Run("missing header rejected", func(t *testing.T) {
		assert.False(t, a.VerifySignature(body, map[string]string{}, []string{secret}))
	})
}

func TestNormalizeChargeCompleted(t *testing.T) {
	a := New()
	payload, err := a.ParsePayload([]byte(chargeCompletedBody))
	require.NoError(t, err)

	event, err := a.Normalize(payload)
	require.NoError(t, err)

	assert.Equal(t, model.EventPaymentSuccessful, event.EventType)
	assert.Equal(t, "charge.completed:128735", event.ProviderEventID)
	assert.Equal(t, "FLW-MOCK-9921", event.ProviderRef)
	assert.Equal(t, "order-555", event.ApplicationRef)
	// 149.99 major units converted without float drift
	assert.Equal(t, int64(14999), event.Amount)
	assert.Equal(t, "USD", event.Currency)
	require.NotNil(t, event.ProviderTimestamp)
}

func TestNormalizeFailedCharge(t *testing.T) {
	a := New()
	payload, err := a.ParsePayload([]byte(`{
		"event": "charge.completed",
		"data": {"id": 2, "tx_ref": "order-1", "flw_ref": "FLW-2", "amount": 10, "currency": "NGN", "status": "failed"}
	}`))
	require.NoError(t, err)

	event, err := a.Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentFailed, event.EventType)
}

func TestNormalizeUnknownChargeStatus(t *testing.T) {
	a := New()
	payload, err := a.ParsePayload([]byte(`{
		"event": "charge.completed",
		"data": {"id": 3, "status": "reversed"}
	}`))
	require.NoError(t, err)

	_, err = a.Normalize(payload)
	var normErr *model.NormalizationError
	require.ErrorAs(t, err, &normErr)
}

func TestNormalizeDisputeResolved(t *testing.T) {
	a := New()
	payload, err := a.ParsePayload([]byte(`{
		"event": "charge.dispute.resolved",
		"data": {"id": 4, "tx_ref": "order-2", "flw_ref": "FLW-4", "amount": 20, "currency": "NGN", "status": "resolved", "dispute_status": "lost"}
	}`))
	require.NoError(t, err)

	event, err := a.Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, model.EventDisputeResolved, event.EventType)
	assert.Equal(t, model.DisputeOutcomeLost, event.DisputeOutcome)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(14999), minorUnits(149.99))
	assert.Equal(t, int64(100), minorUnits(1.0))
	assert.Equal(t, int64(1), minorUnits(0.01))
	assert.Equal(t, int64(0), minorUnits(0))
}
