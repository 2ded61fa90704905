package reconciler

import (
	"fmt"
	"strconv"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

// Templates maps each notification kind to the provider template id
type Templates struct {
	FullyReady     string
	PartiallyReady string
	NoneReady      string
	Forced         string
}

// Notification is one transactional email decided by a transition
type Notification struct {
	TemplateID string
	Email      string
	Vars       map[string]string
}

// BuildNotification picks the template and variables for a committed transition.
// text1 carries the number of keywords that became ready and text2 the number still
// in progress, or failed for forced completion.
func BuildNotification(batch *domain.Batch, t *domain.Transition, templates Templates) *Notification {
	ready := len(t.Promote)
	failed := len(t.Fail)

	var templateID, subject string
	outstanding := 0

	switch t.Scenario {
	case domain.ScenarioEmpty, domain.ScenarioFullyReady:
		templateID = templates.FullyReady
		subject = fmt.Sprintf("Articles generated in %s are now completed", batch.Name)
	case domain.ScenarioPartiallyReady:
		templateID = templates.PartiallyReady
		outstanding = t.Remaining
		subject = fmt.Sprintf("Articles generated in %s are partially completed", batch.Name)
	case domain.ScenarioNoneReady:
		templateID = templates.NoneReady
		outstanding = t.Remaining
		subject = fmt.Sprintf("Article Generation for %s is taking longer than expected", batch.Name)
	case domain.ScenarioForced:
		templateID = templates.Forced
		outstanding = failed
		subject = fmt.Sprintf("Article Generation for %s is complete, %d articles could not be generated and were refunded", batch.Name, failed)
	default:
		return nil
	}

	return &Notification{
		TemplateID: templateID,
		Email:      batch.UserEmail,
		Vars: map[string]string{
			"subject":     subject,
			"text1":       strconv.Itoa(ready),
			"text2":       strconv.Itoa(outstanding),
			"batch":       batch.Name,
			"ready":       strconv.Itoa(ready),
			"in_progress": strconv.Itoa(outstanding - failed),
			"failed":      strconv.Itoa(failed),
			"refunded":    strconv.Itoa(t.Refund()),
		},
	}
}
