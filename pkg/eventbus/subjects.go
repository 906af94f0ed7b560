package eventbus

import "fmt"

const (
	// SubjectPrefix is the canonical prefix for retrieval events.
	SubjectPrefix = "fusemem.v1.retrieval"
)

// MissSubject returns the subject for a retrieval miss, segmented by the
// query's classification label so consumers can subscribe selectively.
func MissSubject(label string) string {
	return fmt.Sprintf("%s.miss.%s", SubjectPrefix, sanitizeSegment(label))
}

// RetuneSubject returns the subject for tuner weight updates.
func RetuneSubject() string {
	return fmt.Sprintf("%s.retune", SubjectPrefix)
}

// Wildcard returns the subject matching every retrieval event.
func Wildcard() string {
	return SubjectPrefix + ".>"
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
