package constants

import "time"

// Default bounds for the two blocking external calls and the classifier
const (
	// DefaultHolidayTimeoutMS - Holiday calendar lookup budget; on expiry the lookup fails open
	DefaultHolidayTimeoutMS = 300

	// DefaultToolTimeoutMS - Integration connector budget; on expiry the outcome is action_required
	DefaultToolTimeoutMS = 5000

	// DefaultClassifierTimeoutMS - Intent classifier budget
	DefaultClassifierTimeoutMS = 2000
)

// Default conversation lifecycle values
const (
	// DefaultConversationTTLSeconds - Idle time after which conversation state is swept
	DefaultConversationTTLSeconds = 1800

	// DefaultLockTTLMS - Per-conversation single-writer lock lease
	DefaultLockTTLMS = 10000

	// DefaultLeaderElectionTTLSeconds - Default leader election TTL in seconds
	DefaultLeaderElectionTTLSeconds = 10

	// DefaultLeaderElectionIntervalSeconds - Default leader election check interval
	DefaultLeaderElectionIntervalSeconds = 5

	// DefaultCleanupIntervalSeconds - Default sweep interval for idle conversations
	DefaultCleanupIntervalSeconds = 60
)

// Redis key prefixes and names
const (
	ConversationKeyPrefix   = "conversation:"
	ActiveConversationsKey  = "active_conversations"
	LockKeyPrefix           = "lock:conversation:"
	LeaderElectionKey       = "router:leader"
	OutcomesStream          = "routing_outcomes"
	ActivityKeyPrefix       = "activity:"
	CatalogueInvalidateChan = "catalogue:invalidate"
)

// Reason prefixes and markers reported on outcomes
const (
	ReasonLowConfidence   = "low_confidence"
	ReasonUrgentKeyword   = "urgent_keyword"
	ReasonNoEligibleSkill = "no_eligible_skill"
	RedactionMarker       = "[REDACTED]"
)

// Signal names an event can carry
const (
	SignalUnknownIntent = "unknown_intent"
)

// Helper functions for time conversions
func MillisecondsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func SecondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// ConversationKey returns the Redis key holding one conversation's state
func ConversationKey(conversationID string) string {
	return ConversationKeyPrefix + conversationID
}

// LockKey returns the Redis key of a conversation's single-writer lock
func LockKey(conversationID string) string {
	return LockKeyPrefix + conversationID
}

// ActivityKey returns the Redis hash aggregating outcomes for one UTC day
func ActivityKey(day time.Time) string {
	return ActivityKeyPrefix + day.UTC().Format("2006-01-02")
}

// OutcomesStreamMaxLen - Approximate cap on the outcome stream length
const OutcomesStreamMaxLen = 100000
