package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	Reconnects        Counter
	DecodeFailures    Counter
	SnapshotsApplied  Counter
	TicksDropped      Counter
	TradesPlaced      Counter
	TradesRejected    Counter
	UnmatchedResults  Counter
	HeartbeatTimeouts Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		Reconnects:        n,
		DecodeFailures:    n,
		SnapshotsApplied:  n,
		TicksDropped:      n,
		TradesPlaced:      n,
		TradesRejected:    n,
		UnmatchedResults:  n,
		HeartbeatTimeouts: n,
	}
}
