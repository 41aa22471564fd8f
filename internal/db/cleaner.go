package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const closeExpiredWindow = `
UPDATE event
   SET ended = true
 WHERE ended = false
   AND started_at IS NOT NULL
   AND started_at + make_interval(secs => duration_seconds) <= $1
`

// StartWindowCloser marks the decryption window ended once it has elapsed,
// checking every interval until ctx is done. Status reads already treat an
// elapsed window as inactive; this keeps the stored row consistent with them.
func StartWindowCloser(
	ctx context.Context,
	db *sql.DB,
	clock clockwork.Clock,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				res, err := db.ExecContext(ctx, closeExpiredWindow, clock.Now())
				if err != nil {
					log.Error("failed to close expired window", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("decryption window closed")
				}
			}
		}
	}()
}
