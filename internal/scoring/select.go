package scoring

// Scored is a candidate reply with its score.
type Scored struct {
	Backend string
	Text    string
	Result  Result
}

// Select returns b only when it scores strictly higher than a.
// Ties go to a.
func Select(a, b Scored) Scored {
	if b.Result.Total > a.Result.Total {
		return b
	}
	return a
}
