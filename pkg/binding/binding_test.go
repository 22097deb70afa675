package binding

import "testing"

func TestNoOpImplementsServiceBinding(t *testing.T) {
	var b ServiceBinding = NoOp{}
	b.OnTransportInUse()
	b.OnTransportNotInUse()
}
