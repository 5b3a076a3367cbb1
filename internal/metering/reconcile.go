package metering

// Reconciliation folds the live seconds countdown back into the persisted
// minute balances at session end. The remaining seconds are authoritative;
// they are re-split across available/extra in the same ratio the two held
// when the session started, so plan minutes and top-up minutes drain
// proportionally. When the session started with a zero balance split the
// whole remainder goes to available.

// Resplit returns the (available, extra) minute balances for the given
// remaining seconds. Both results are non-negative and their sum times 60
// floors back to remainingSeconds.
func Resplit(remainingSeconds int64, startAvailable, startExtra float64) (float64, float64) {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	remaining := float64(remainingSeconds) / 60
	total := startAvailable + startExtra
	if total <= 0 {
		return remaining, 0
	}
	available := remaining * (startAvailable / total)
	extra := remaining - available
	if available < 0 {
		available = 0
	}
	if extra < 0 {
		extra = 0
	}
	return available, extra
}
