package database

import (
	"context"
	"time"

	"github.com/sdko-org/photo-insights/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccessLogPurger deletes access log rows older than the retention window.
type AccessLogPurger struct {
	logger    *logrus.Logger
	db        *gorm.DB
	retention time.Duration
	interval  time.Duration
}

func NewAccessLogPurger(logger *logrus.Logger, db *gorm.DB, retention time.Duration) *AccessLogPurger {
	return &AccessLogPurger{
		logger:    logger,
		db:        db,
		retention: retention,
		interval:  30 * time.Minute,
	}
}

func (p *AccessLogPurger) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logEntry := p.logger.WithField("component", "access_log_purger")
	logEntry.Info("Starting access log purger")

	for {
		select {
		case <-ticker.C:
			p.purge(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping access log purger")
			return
		}
	}
}

func (p *AccessLogPurger) purge(ctx context.Context, log *logrus.Entry) {
	cutoff := time.Now().Add(-p.retention)

	result := p.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.AccessLog{})
	if result.Error != nil {
		log.WithError(result.Error).Error("Access log purge failed")
		return
	}

	log.WithField("count", result.RowsAffected).Info("Purged expired access logs")
}
