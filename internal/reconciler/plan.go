package reconciler

import (
	"time"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Plan turns a classification into the ledger writes for one batch. Ready keywords
// are always promoted; unfilled keywords are dispatched (if not yet sent) or, in the
// forced scenario, failed and refunded to refundTier.
func Plan(batch *domain.Batch, c Classification, refundTier domain.Tier, now time.Time) *domain.Transition {
	t := &domain.Transition{
		BatchID:  batch.ID,
		UserID:   batch.UserID,
		Scenario: c.Scenario,
		Snapshot: batch.UpdatedAt,
		Now:      now,
		Promote:  c.Ready,
	}

	switch c.Scenario {
	case domain.ScenarioForced:
		t.Fail = c.NotReady
		t.RefundTier = refundTier
	case domain.ScenarioPartiallyReady, domain.ScenarioNoneReady:
		for _, row := range c.NotReady {
			if !row.Dispatched() {
				t.Dispatch = append(t.Dispatch, row)
			}
		}
	}

	t.Remaining = len(c.Ready) + len(c.NotReady) - len(t.Promote) - len(t.Fail)
	t.Close = t.Remaining == 0

	return t
}
