package domain

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
)

var transitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:  {InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusSent:   {InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusRefunded},
	InvoiceStatusViewed: {InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusRefunded},
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	default:
		return false
	}
}

func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// Payable reports whether money is still expected for the invoice.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusSent || s == InvoiceStatusViewed
}

// Issued reports whether the invoice has left draft and counts as a sale.
func (s InvoiceStatus) Issued() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusViewed || s == InvoiceStatusPaid
}

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
