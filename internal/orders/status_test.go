package orders

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusProcessing, StatusTransferredToCarrier},
		{StatusProcessing, StatusShipping},
		{StatusProcessing, StatusDelivered}, // skip path
		{StatusProcessing, StatusRefundRequested},
		{StatusTransferredToCarrier, StatusShipping},
		{StatusTransferredToCarrier, StatusDelivered},
		{StatusShipping, StatusDelivered},
		{StatusDelivered, StatusRefundRequested},
		{StatusRefundRequested, StatusRefundSucceeded},
		{StatusRefundRequested, StatusRefundRejected},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusDelivered, StatusProcessing},
		{StatusDelivered, StatusShipping},
		{StatusDelivered, StatusDelivered},
		{StatusShipping, StatusTransferredToCarrier},
		{StatusProcessing, StatusRefundSucceeded}, // must go through refund_requested
		{StatusRefundSucceeded, StatusRefundRequested},
		{StatusRefundRejected, StatusRefundSucceeded},
		{StatusProcessing, Status("wtf")},
		{Status("wtf"), StatusDelivered},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be rejected", c.from, c.to)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{
		StatusProcessing, StatusTransferredToCarrier, StatusShipping,
		StatusDelivered, StatusRefundRequested, StatusRefundSucceeded, StatusRefundRejected,
	} {
		if !ValidStatus(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	if ValidStatus(Status("Transferred to delivery partner")) {
		t.Error("free-form status strings must be rejected")
	}
}
