package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookCtx() TransitionContext {
	return TransitionContext{Trigger: TriggerWebhook}
}

func TestValidateTransition_AllowedEdges(t *testing.T) {
	cases := []struct {
		from TransactionStatus
		to   TransactionStatus
	}{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusAbandoned},
		{StatusPending, StatusFailed},
		{StatusProcessing, StatusSuccessful},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusAbandoned},
		{StatusSuccessful, StatusRefunded},
		{StatusSuccessful, StatusPartiallyRefunded},
		{StatusSuccessful, StatusDisputed},
		{StatusPartiallyRefunded, StatusRefunded},
		{StatusPartiallyRefunded, StatusDisputed},
		{StatusDisputed, StatusResolvedWon},
		{StatusDisputed, StatusResolvedLost},
		{StatusDisputed, StatusSuccessful},
	}

	for _, tc := range cases {
		result := ValidateTransition(tc.from, tc.to, webhookCtx())
		assert.True(t, result.Allowed, "%s -> %s should be allowed", tc.from, tc.to)
	}
}

func TestValidateTransition_RejectedEdges(t *testing.T) {
	cases := []struct {
		from TransactionStatus
		to   TransactionStatus
	}{
		{StatusPending, StatusSuccessful},
		{StatusPending, StatusRefunded},
		{StatusSuccessful, StatusPending},
		{StatusSuccessful, StatusProcessing},
		{StatusProcessing, StatusDisputed},
		{StatusDisputed, StatusRefunded},
	}

	for _, tc := range cases {
		result := ValidateTransition(tc.from, tc.to, webhookCtx())
		assert.False(t, result.Allowed, "%s -> %s should be rejected", tc.from, tc.to)
		assert.NotEmpty(t, result.Reason)
	}
}

func TestValidateTransition_TerminalStatusesAreSealed(t *testing.T) {
	terminals := []TransactionStatus{
		StatusFailed, StatusAbandoned, StatusRefunded, StatusResolvedWon, StatusResolvedLost,
	}

	for _, from := range terminals {
		for _, to := range ValidStatuses {
			if from == to {
				continue
			}
			result := ValidateTransition(from, to, webhookCtx())
			assert.False(t, result.Allowed, "%s is terminal, %s -> %s must be rejected", from, from, to)
		}
	}
}

func TestValidateTransition_TerminalSealedEvenUnderManualForce(t *testing.T) {
	ctx := TransitionContext{Trigger: TriggerManual, Force: true}

	result := ValidateTransition(StatusRefunded, StatusSuccessful, ctx)
	require.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "terminal")
}

func TestValidateTransition_ManualForceTakesOffTableEdges(t *testing.T) {
	// PENDING -> SUCCESSFUL is not in the table
	blocked := ValidateTransition(StatusPending, StatusSuccessful, webhookCtx())
	require.False(t, blocked.Allowed)

	forced := ValidateTransition(StatusPending, StatusSuccessful, TransitionContext{
		Trigger: TriggerManual,
		Force:   true,
	})
	assert.True(t, forced.Allowed)

	// Without force, MANUAL follows the table like everyone else
	unforced := ValidateTransition(StatusPending, StatusSuccessful, TransitionContext{
		Trigger: TriggerManual,
	})
	assert.False(t, unforced.Allowed)
}

func TestValidateTransition_SameStatusIsRejected(t *testing.T) {
	result := ValidateTransition(StatusSuccessful, StatusSuccessful, webhookCtx())
	require.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "same status")
}

func TestValidateTransition_UnknownStatuses(t *testing.T) {
	result := ValidateTransition(TransactionStatus("BOGUS"), StatusSuccessful, webhookCtx())
	assert.False(t, result.Allowed)

	result = ValidateTransition(StatusPending, TransactionStatus("BOGUS"), webhookCtx())
	assert.False(t, result.Allowed)
}

func TestVerificationMethod_ConfidenceOrdering(t *testing.T) {
	assert.Less(t,
		VerificationWebhookOnly.ConfidenceRank(),
		VerificationAPIVerified.ConfidenceRank(),
	)
	assert.Less(t,
		VerificationAPIVerified.ConfidenceRank(),
		VerificationReconciled.ConfidenceRank(),
	)
	assert.Equal(t, 0, VerificationMethod("BOGUS").ConfidenceRank())
}

func TestMoney_Validate(t *testing.T) {
	assert.NoError(t, Money{Amount: 10000, Currency: "NGN"}.Validate())
	assert.NoError(t, Money{Amount: 0, Currency: "USD"}.Validate())

	assert.Error(t, Money{Amount: -1, Currency: "NGN"}.Validate())
	assert.Error(t, Money{Amount: 100, Currency: "ngn"}.Validate())
	assert.Error(t, Money{Amount: 100, Currency: "NAIRA"}.Validate())
	assert.Error(t, Money{Amount: 100, Currency: ""}.Validate())
}
