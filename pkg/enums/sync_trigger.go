package enums

import "fmt"

// SyncTrigger records what started a synchronization pass.
type SyncTrigger string

const (
	SyncTriggerManual       SyncTrigger = "manual"
	SyncTriggerQueueNonZero SyncTrigger = "queue_non_empty"
	SyncTriggerNotification SyncTrigger = "notification"
	SyncTriggerInterval     SyncTrigger = "interval"
)

var validSyncTriggers = []SyncTrigger{
	SyncTriggerManual,
	SyncTriggerQueueNonZero,
	SyncTriggerNotification,
	SyncTriggerInterval,
}

// String implements fmt.Stringer.
func (t SyncTrigger) String() string {
	return string(t)
}

// IsValid reports whether the value is a known SyncTrigger.
func (t SyncTrigger) IsValid() bool {
	for _, candidate := range validSyncTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSyncTrigger converts raw input into a SyncTrigger.
func ParseSyncTrigger(value string) (SyncTrigger, error) {
	for _, candidate := range validSyncTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync trigger %q", value)
}
