package reconciler

import "github.com/cuongbtq/batch-reconciler/internal/domain"

// Classification partitions a batch's pending keywords and names the scenario
type Classification struct {
	Scenario domain.Scenario
	Ready    []domain.PendingKeyword
	NotReady []domain.PendingKeyword
}

// Classify decides the scenario for one batch. Priority: empty, forced,
// fully ready, partially ready, none ready.
func Classify(rows []domain.PendingKeyword) Classification {
	var c Classification

	for _, row := range rows {
		if row.HasContent {
			c.Ready = append(c.Ready, row)
		} else {
			c.NotReady = append(c.NotReady, row)
		}
	}

	switch {
	case len(rows) == 0:
		c.Scenario = domain.ScenarioEmpty
	case allDispatched(c.NotReady):
		c.Scenario = domain.ScenarioForced
	case len(c.NotReady) == 0:
		c.Scenario = domain.ScenarioFullyReady
	case len(c.Ready) > 0:
		c.Scenario = domain.ScenarioPartiallyReady
	default:
		c.Scenario = domain.ScenarioNoneReady
	}

	return c
}

// allDispatched is true only for a non-empty set where every keyword already had its window
func allDispatched(rows []domain.PendingKeyword) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if !row.Dispatched() {
			return false
		}
	}
	return true
}
