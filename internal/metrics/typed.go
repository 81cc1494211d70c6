package metrics

// Typed wraps a Tracker with a closed set of counter names, so services with
// a fixed metric vocabulary (e.g. Consolidate's ConsolidateMetric) get
// compile-time checked Inc calls instead of free-form strings.
type Typed[T ~string] struct {
	tracker *Tracker
}

// NewTyped returns a Typed tracker over the given counter-name type.
func NewTyped[T ~string]() Typed[T] {
	return Typed[T]{tracker: NewTracker()}
}

// Inc increments the named counter by 1.
func (t Typed[T]) Inc(name T) {
	t.tracker.Inc(string(name))
}

// Increment adds delta to the named counter.
func (t Typed[T]) Increment(name T, delta int64) {
	t.tracker.Increment(string(name), delta)
}

// GetAndResetPacket returns the underlying Tracker's packet, see
// Tracker.GetAndResetPacket.
func (t Typed[T]) GetAndResetPacket() Packet {
	return t.tracker.GetAndResetPacket()
}

// Snapshot returns the underlying Tracker's snapshot, see Tracker.Snapshot.
func (t Typed[T]) Snapshot() Packet {
	return t.tracker.Snapshot()
}
