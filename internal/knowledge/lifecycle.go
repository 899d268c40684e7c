package knowledge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// defaultStaleAfter is how long a resolved/superseded/archived discovery
// can sit untouched before a lifecycle sweep deletes it.
const defaultStaleAfter = 90 * 24 * time.Hour

// CleanupReport summarizes a lifecycle_cleanup pass, dry-run or real.
type CleanupReport struct {
	DryRun     bool
	CutoffTime time.Time
	IDs        []uuid.UUID
}

// LifecycleCleanup deletes (or, in dry_run, merely counts and lists)
// resolved/superseded/archived discoveries whose last update is older than
// staleAfter. The count-first, delete-second shape mirrors the retention
// sweep's dry-run pattern: callers inspect CleanupReport.IDs before
// committing to a real run.
func (s *Service) LifecycleCleanup(ctx context.Context, dryRun bool, staleAfter time.Duration, now time.Time) (CleanupReport, error) {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	cutoff := now.Add(-staleAfter)

	ids, err := s.store.DeleteStaleDiscoveries(ctx, cutoff, dryRun)
	if err != nil {
		return CleanupReport{}, err
	}

	return CleanupReport{DryRun: dryRun, CutoffTime: cutoff, IDs: ids}, nil
}
