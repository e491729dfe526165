package types

// MaxProgress is the upper bound of the progress counter
const MaxProgress = 10

// Score is the accumulated result reported by a running game
type Score struct {
	Correct  int `json:"correct"`
	Wrong    int `json:"wrong"`
	Progress int `json:"progress"`
}

// ScoreDelta is a partial score update; nil fields are absent
type ScoreDelta struct {
	Correct  *int `json:"correct,omitempty"`
	Wrong    *int `json:"wrong,omitempty"`
	Progress *int `json:"progress,omitempty"`
}

// Empty reports whether the delta carries no field at all
func (d ScoreDelta) Empty() bool {
	return d.Correct == nil && d.Wrong == nil && d.Progress == nil
}

// Merge overwrites each field present in d and keeps the rest
func (s Score) Merge(d ScoreDelta) Score {
	if d.Correct != nil {
		s.Correct = clamp(*d.Correct, 0, -1)
	}
	if d.Wrong != nil {
		s.Wrong = clamp(*d.Wrong, 0, -1)
	}
	if d.Progress != nil {
		s.Progress = clamp(*d.Progress, 0, MaxProgress)
	}
	return s
}

// clamp bounds v to [lo, hi]; a negative hi means unbounded
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi >= 0 && v > hi {
		return hi
	}
	return v
}
