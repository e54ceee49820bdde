package broadcast

import "time"

// DeliveryResult is the outcome of one delivery inside a firing.
type DeliveryResult struct {
	Recipient Recipient `json:"recipient"`
	OK        bool      `json:"ok"`
	Reason    string    `json:"reason,omitempty"`
	Err       string    `json:"err,omitempty"`

	// Skipped is set when shutdown interrupted the pass before or during
	// this delivery. The recipient stays registered.
	Skipped bool `json:"skipped,omitempty"`
}

// FireReport summarizes one firing. It is an observability record only.
type FireReport struct {
	ID        string           `json:"id"`
	At        time.Time        `json:"at"`
	Took      time.Duration    `json:"took"`
	Attempted int              `json:"attempted"`
	Delivered int              `json:"delivered"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped,omitempty"`
	Results   []DeliveryResult `json:"results,omitempty"`
}

// Pruned lists the recipients removed by this firing.
func (r FireReport) Pruned() []Recipient {
	out := make([]Recipient, 0, r.Failed)
	for _, res := range r.Results {
		if !res.OK && !res.Skipped {
			out = append(out, res.Recipient)
		}
	}
	return out
}

// Status is a point-in-time view of the Scheduler.
type Status struct {
	Started    bool
	Arms       uint64
	Spec       string
	Timezone   string
	Recipients int
	Next       time.Time
	Prev       time.Time
	Last       *FireReport
}
