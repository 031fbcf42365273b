package adapter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/adapter/flutterwave"
	"payhook/internal/domains/webhook/adapter/paystack"
	"payhook/internal/domains/webhook/adapter/stripe"
)

func TestRegistryLookup(t *testing.T) {
	registry := adapter.NewRegistry(
		adapter.Registration{Adapter: paystack.New(), Secrets: []string{"sk_1", "sk_2"}},
		adapter.Registration{Adapter: stripe.New(), Secrets: []string{"whsec_1"}},
		adapter.Registration{Adapter: flutterwave.New(), Secrets: []string{"flw_1"}},
	)

	a, ok := registry.Adapter("paystack")
	require.True(t, ok)
	assert.Equal(t, "paystack", a.Name())

	assert.Equal(t, []string{"sk_1", "sk_2"}, registry.Secrets("paystack"))
	assert.ElementsMatch(t, []string{"paystack", "stripe", "flutterwave"}, registry.Providers())

	_, ok = registry.Adapter("unknown-gateway")
	assert.False(t, ok)
	assert.Nil(t, registry.Secrets("unknown-gateway"))
}

func TestSynthesizeIdempotencyKey(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	body := []byte(`{"ref":"abc"}`)

	first := adapter.SynthesizeIdempotencyKey(body, "paystack", at)
	second := adapter.SynthesizeIdempotencyKey(body, "paystack", at)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	assert.NotEqual(t, first, adapter.SynthesizeIdempotencyKey(body, "stripe", at))
	assert.NotEqual(t, first, adapter.SynthesizeIdempotencyKey([]byte(`{"ref":"xyz"}`), "paystack", at))
	assert.NotEqual(t, first, adapter.SynthesizeIdempotencyKey(body, "paystack", at.Add(time.Second)))
}
