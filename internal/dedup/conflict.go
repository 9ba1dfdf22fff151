package dedup

// Severity ranks a field conflict.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// DataConflict is one field that differs between the stored product and
// an incoming line item.
type DataConflict struct {
	Field          string   `json:"field"`
	Existing       any      `json:"existing"`
	Incoming       any      `json:"incoming"`
	Severity       Severity `json:"severity"`
	AutoResolvable bool     `json:"auto_resolvable"`
}

// MaxSeverity returns the highest severity present, or SeverityNone for an
// empty set.
func MaxSeverity(conflicts []DataConflict) Severity {
	out := SeverityNone
	for _, c := range conflicts {
		if c.Severity.rank() > out.rank() {
			out = c.Severity
		}
	}
	return out
}

// AllAutoResolvable reports whether a non-empty conflict set can be
// resolved without review.
func AllAutoResolvable(conflicts []DataConflict) bool {
	if len(conflicts) == 0 {
		return false
	}
	for _, c := range conflicts {
		if !c.AutoResolvable {
			return false
		}
	}
	return true
}
