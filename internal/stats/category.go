package stats

import "github.com/znz-systems/sesdash/internal/models"

// Dashboard categories. Statuses outside these are counted in summaries only.
const (
	CategorySent      = "sent"
	CategoryDelivered = "delivered"
	CategoryBounced   = "bounced"
	CategoryOpened    = "opened"
)

var categoryByStatus = map[string]string{
	models.StatusSend:          CategorySent,
	models.StatusDelivery:      CategoryDelivered,
	models.StatusDeliveryDelay: CategoryDelivered,
	models.StatusBounce:        CategoryBounced,
	models.StatusOpen:          CategoryOpened,
	models.StatusClick:         CategoryOpened,
}

// CategoryOf returns the dashboard category of status.
func CategoryOf(status string) (string, bool) {
	c, ok := categoryByStatus[status]
	return c, ok
}

// CategoryTotals are per-category sums over a window.
type CategoryTotals struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Bounced   int64 `json:"bounced"`
	Opened    int64 `json:"opened"`
}

func (t *CategoryTotals) add(category string, n int64) {
	switch category {
	case CategorySent:
		t.Sent += n
	case CategoryDelivered:
		t.Delivered += n
	case CategoryBounced:
		t.Bounced += n
	case CategoryOpened:
		t.Opened += n
	}
}

// TotalsFromSummary folds a status summary into categories.
func TotalsFromSummary(summary map[string]int64) CategoryTotals {
	var t CategoryTotals
	for status, n := range summary {
		if c, ok := CategoryOf(status); ok {
			t.add(c, n)
		}
	}
	return t
}

var statusDescriptions = map[string]string{
	models.StatusSend:             "Accepted by the provider for delivery.",
	models.StatusDelivery:         "Delivered to the recipient's mail server.",
	models.StatusDeliveryDelay:    "Delivery is delayed; the provider keeps retrying.",
	models.StatusBounce:           "Rejected by the recipient's mail server.",
	models.StatusOpen:             "Opened by the recipient.",
	models.StatusClick:            "A link in the message was clicked.",
	models.StatusComplaint:        "The recipient marked the message as spam.",
	models.StatusReject:           "Rejected by the provider before sending.",
	models.StatusRenderingFailure: "The message template could not be rendered.",
}

// StatusDescription returns a human-readable explanation of status.
func StatusDescription(status string) string {
	if d, ok := statusDescriptions[status]; ok {
		return d
	}
	return "Unrecognised provider status."
}
