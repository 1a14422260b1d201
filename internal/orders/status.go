package orders

type Status string

const (
	StatusProcessing           Status = "processing"
	StatusTransferredToCarrier Status = "transferred_to_carrier"
	StatusShipping             Status = "shipping"
	StatusDelivered            Status = "delivered"
	StatusRefundRequested      Status = "refund_requested"
	StatusRefundSucceeded      Status = "refund_succeeded"
	StatusRefundRejected       Status = "refund_rejected"
)

// Forward transitions may skip intermediate fulfillment states: an order can go
// straight from processing to delivered (the delivery-path fallback then takes
// care of the stock decrement). Refund outcomes are only reachable through
// refund_requested; refund_succeeded and refund_rejected are terminal.
var validNext = map[Status]map[Status]bool{
	StatusProcessing: {
		StatusTransferredToCarrier: true,
		StatusShipping:             true,
		StatusDelivered:            true,
		StatusRefundRequested:      true,
	},
	StatusTransferredToCarrier: {
		StatusShipping:        true,
		StatusDelivered:       true,
		StatusRefundRequested: true,
	},
	StatusShipping: {
		StatusDelivered:       true,
		StatusRefundRequested: true,
	},
	StatusDelivered: {
		StatusRefundRequested: true,
	},
	StatusRefundRequested: {
		StatusRefundSucceeded: true,
		StatusRefundRejected:  true,
	},
	StatusRefundSucceeded: {},
	StatusRefundRejected:  {},
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
