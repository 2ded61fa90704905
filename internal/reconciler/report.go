package reconciler

import "time"

// TickReport summarizes one tick; it is the trigger endpoint's acknowledgement body
type TickReport struct {
	TickID         string         `json:"tick_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Candidates     int            `json:"candidates"`
	Scenarios      map[string]int `json:"scenarios"`
	Applied        int            `json:"applied"`
	Closed         int            `json:"closed"`
	Conflicts      int            `json:"conflicts"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	Dispatched     int            `json:"dispatched"`
	SendFailures   int            `json:"send_failures"`
	Rearmed        int            `json:"rearmed"`
	Refunded       int            `json:"refunded"`
	Notified       int            `json:"notified"`
	NotifyFailures int            `json:"notify_failures"`
}

func newTickReport(tickID string, startedAt time.Time) TickReport {
	return TickReport{
		TickID:    tickID,
		StartedAt: startedAt,
		Scenarios: make(map[string]int),
	}
}

func (r *TickReport) add(o batchOutcome) {
	switch o.result {
	case resultConflict:
		r.Conflicts++
		return
	case resultSkipped:
		r.Skipped++
		return
	case resultFailed:
		r.Failed++
		return
	}

	r.Applied++
	r.Scenarios[o.scenario.String()]++
	if o.closed {
		r.Closed++
	}
	r.Dispatched += o.dispatched
	r.SendFailures += o.sendFailures
	r.Rearmed += o.rearmed
	r.Refunded += o.refunded
	if o.notified {
		r.Notified++
	}
	if o.notifyFailed {
		r.NotifyFailures++
	}
}
