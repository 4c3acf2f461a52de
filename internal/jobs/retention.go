package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stockalert/stockalert/internal/database"
)

// RetentionJob purges old read or dismissed notifications and old run records
type RetentionJob struct {
	store *database.Store
	done  chan struct{}
}

// NewRetentionJob creates a retention sweep
func NewRetentionJob(store *database.Store) *RetentionJob {
	return &RetentionJob{store: store, done: make(chan struct{})}
}

// Done is closed once Start has returned
func (j *RetentionJob) Done() <-chan struct{} {
	return j.done
}

// Purge deletes rows older than the configured retention and returns how many were removed
func (j *RetentionJob) Purge(ctx context.Context) (notifications int64, runs int64, err error) {
	settings, err := database.GetOrCreateAlertSettings(j.store.DB().WithContext(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load alert settings: %w", err)
	}
	if settings.RetentionDays <= 0 {
		return 0, 0, nil
	}

	cutoff := j.store.Now().Add(-settings.Retention())
	notifications, err = j.store.PurgeNotifications(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	runs, err = j.store.PurgeHealthCheckRuns(ctx, cutoff)
	if err != nil {
		return notifications, 0, err
	}
	return notifications, runs, nil
}

// Start begins the periodic retention sweep
func (j *RetentionJob) Start(interval time.Duration, stop <-chan struct{}) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			notifications, runs, err := j.Purge(context.Background())
			if err != nil {
				log.Printf("Retention job error: %v", err)
			} else if notifications > 0 || runs > 0 {
				log.Printf("Retention job: purged %d notifications and %d health check runs", notifications, runs)
			}
		case <-stop:
			log.Println("Retention job stopped")
			return
		}
	}
}
