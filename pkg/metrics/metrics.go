package metrics

// Namespace prefixes every metric this service exports.
const Namespace = "events_aggregator"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
