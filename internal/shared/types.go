package shared

// Asynq task type names.
// Shared between the API (enqueue side) and the worker (handler side).
const (
	TypeOutboxDrain      = "outbox:drain"
	TypeWebhookRetention = "webhook:retention"
	TypeOutboxRetention  = "outbox:retention"
	TypeExpirePending    = "transaction:expire_pending"
)
