package rate

// AverageSlots is the number of samples the trailing average spans.
const AverageSlots = 10

// Average is a fixed ring of the last AverageSlots samples with a running
// sum. Unfilled slots count as zero.
type Average struct {
	slots [AverageSlots]int
	next  int
	sum   int
}

// Push replaces the oldest sample with v.
func (a *Average) Push(v int) {
	a.sum += v - a.slots[a.next]
	a.slots[a.next] = v
	a.next = (a.next + 1) % AverageSlots
}

// Value is the sum of the slots divided by AverageSlots.
func (a *Average) Value() float64 {
	return float64(a.sum) / AverageSlots
}
