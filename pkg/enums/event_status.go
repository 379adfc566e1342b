package enums

// EventStatus mirrors the status values published by the events provider.
// Unknown values are stored verbatim; only published events accept
// registrations.
type EventStatus string

const (
	EventStatusNew       EventStatus = "new"
	EventStatusPublished EventStatus = "published"
	EventStatusFinished  EventStatus = "finished"
)

var knownEventStatuses = []EventStatus{
	EventStatusNew,
	EventStatusPublished,
	EventStatusFinished,
}

// IsKnown reports whether the value is one of the statuses this service
// reasons about.
func (s EventStatus) IsKnown() bool {
	for _, candidate := range knownEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s EventStatus) String() string {
	return string(s)
}
