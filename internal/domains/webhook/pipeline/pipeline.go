package pipeline

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	outboxrepo "payhook/internal/domains/outbox/repository"
	txnrepo "payhook/internal/domains/transaction/repository"
	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/dispatcher"
	"payhook/internal/domains/webhook/model"
	webhookrepo "payhook/internal/domains/webhook/repository"
	"payhook/pkg/database"
)

// =====================================================
// PIPELINE
// =====================================================

// Stage is one step of the ingestion pipeline. Stages mutate the
// shared context and tell the runner whether to keep going. Expected
// failures become fates on the context; only unrecoverable problems
// surface through StageResult.Err.
type Stage interface {
	Name() string
	Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult
}

// TxRunner executes a function inside one database transaction. It
// exists so the state engine stage can be exercised without a live
// pool.
type TxRunner func(ctx context.Context, fn database.TxFunc) error

// PoolTxRunner is the production TxRunner
func PoolTxRunner(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn database.TxFunc) error {
		return database.WithTransaction(ctx, pool, fn)
	}
}

// DedupCache is the duplicate fast path. Satisfied by the redis
// client; every error is treated as a soft failure and the database
// check runs instead.
type DedupCache interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Options carries the tunables the stages read
type Options struct {
	AutoCreateTransactions bool
	OutboxEnabled          bool
	RedactKeys             []string
	SkipSignatureCheck     bool
}

// Deps wires the stages to their collaborators
type Deps struct {
	Registry    *adapter.Registry
	RunInTx     TxRunner
	WebhookRepo webhookrepo.WebhookRepoInterface
	TxnRepo     txnrepo.TransactionRepoInterface
	AuditRepo   txnrepo.AuditRepoInterface
	OutboxRepo  outboxrepo.OutboxRepoInterface
	Cache       DedupCache
	Dispatcher  *dispatcher.Dispatcher
	Options     Options
}

// BuildStages assembles the standard six-stage pipeline in order
func BuildStages(deps Deps) []Stage {
	return []Stage{
		NewVerifyStage(deps.Registry, deps.Options.SkipSignatureCheck),
		NewNormalizeStage(deps.Registry),
		NewPersistStage(deps),
		NewDedupeStage(deps.WebhookRepo, deps.AuditRepo, deps.Cache),
		NewStateEngineStage(deps),
		NewDispatchStage(deps),
	}
}
