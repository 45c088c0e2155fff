package storage

// Window is the inclusive hour range during which capture is attempted.
// Hours outside it are actively purged from the corpus.
type Window struct {
	Start int
	End   int
}

// Contains reports whether the given hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.Start && hour <= w.End
}
