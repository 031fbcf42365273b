package main

import (
	"payhook/pkg/container"
	"payhook/pkg/logger"
)

// workerConfig is the worker-local view of the configuration
type workerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookRetentionDays int
	OutboxRetentionDays  int
	ArchiveEnabled       bool

	// PENDING transactions older than this many hours are abandoned
	PendingExpiryHours int
}

func loadWorkerConfig(c *container.Container) *workerConfig {
	cfg := &workerConfig{
		RedisAddr:            c.Config.Redis.Host,
		RedisPassword:        c.Config.Redis.Password,
		RedisDB:              c.Config.Redis.DB,
		WebhookRetentionDays: c.Config.Retention.WebhookLogDays,
		OutboxRetentionDays:  c.Config.Retention.OutboxEventDays,
		ArchiveEnabled:       c.Config.Retention.ArchiveEnabled,
		PendingExpiryHours:   24,
	}

	logger.Info("worker config loaded", map[string]interface{}{
		"redis":                  cfg.RedisAddr,
		"webhook_retention_days": cfg.WebhookRetentionDays,
		"outbox_retention_days":  cfg.OutboxRetentionDays,
		"archive_enabled":        cfg.ArchiveEnabled,
	})
	return cfg
}
