package enums

// CheckoutState enumerates the checkout orchestrator states.
type CheckoutState string

const (
	CheckoutStateIdle                    CheckoutState = "idle"
	CheckoutStateMethodSelectionRequired CheckoutState = "method_selection_required"
	CheckoutStateConfirming              CheckoutState = "confirming"
	CheckoutStateSubmitting              CheckoutState = "submitting"
	CheckoutStateSucceeded               CheckoutState = "succeeded"
	CheckoutStateQueuedOffline           CheckoutState = "queued_offline"
)

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsTerminal reports whether the state waits only for an acknowledgement.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateSucceeded || s == CheckoutStateQueuedOffline
}
