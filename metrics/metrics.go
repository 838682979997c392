// Package metrics records per-operation outcomes and latency.
package metrics

import "time"

// Event and operation names emitted by the client.
const (
	OpCreatePayment = "create_payment"
	OpSignAndSettle = "sign_and_settle"
	OpSettlePayment = "settle_payment"
	OpVerifyPayment = "verify_payment"
	OpHealth        = "health"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Observe records one finished operation: its latency and a
// "<op>_success" or "<op>_failure" counter. Labels should carry "network".
func Observe(r Recorder, op string, start time.Time, err error, labels map[string]string) {
	r.ObserveLatency(op, time.Since(start), labels)
	if err != nil {
		r.IncCounter(op+"_failure", labels)
		return
	}
	r.IncCounter(op+"_success", labels)
}
