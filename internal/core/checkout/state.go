// Package checkout drives a payment from the buyer side: it validates the
// cart, asks the trusted server to create and capture provider payments,
// and performs the local effects of a completed order.
package checkout

type State int

const (
	Idle State = iota
	AwaitingProviderApproval
	Capturing
	Captured
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingProviderApproval:
		return "awaiting_provider_approval"
	case Capturing:
		return "capturing"
	case Captured:
		return "captured"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Busy reports whether a payment is in flight and submission must be blocked.
func (s State) Busy() bool {
	return s == AwaitingProviderApproval || s == Capturing
}
