package instance

import (
	"fmt"
	"os"
	"strings"
)

// GetID returns an identifier for this process, used to record which
// instance claimed a sync run or a lock.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("EVENTS_INSTANCE_ID")); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "events-aggregator"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
