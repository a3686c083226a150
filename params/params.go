package params

import "time"

const (
	ServerBodyLimit    = 262144 // 256 KiB, messages are small JSON blobs
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 65 * time.Second // must exceed MaxPollBlock
	ServerWriteTimeout = 65 * time.Second

	HealthCheckServerAddr = ":3001" // health check and metrics server address

	// Ingestion pipeline tuning.
	MessageBatchSize = 10                     // max pending messages committed per transaction
	ProcessorSleep   = 150 * time.Millisecond // pause between successful batch iterations
	ProcessorBackoff = 2 * time.Second        // pause after a non-abort processing error
	CleanupInterval  = 2 * time.Hour          // stale index sweep period
	MaxPollMessages  = 100                    // upper bound on messages returned per poll

	// Message retention bounds (seconds), enforced on bus provisioning.
	RetentionMinSeconds       = 60
	RetentionMaxSeconds       = 604800 // one week
	RetentionStickyMinSeconds = 28800  // eight hours
	RetentionStickyMaxSeconds = 604800

	// Fallback retention for messages referencing an unknown bus.
	DefaultRetentionSeconds       = 60
	DefaultStickyRetentionSeconds = 28800

	// Token lifecycle.
	AccessTokenExpiration  = time.Hour           // anonymous and privileged access tokens
	RefreshTokenExpiration = 14 * 24 * time.Hour // privileged refresh tokens
	AuthCodeExpiration     = 5 * time.Minute     // authorization code validity
	TokenSecretLength      = 20                  // random part of a token identifier
	ClientSecretLength     = 32                  // auto-generated client secrets

	// Long polling.
	MaxPollBlock = 60 * time.Second

	// Leadership lease.
	LeaderLeaseTTL     = 30 * time.Second
	LeaderRenewPeriod  = 10 * time.Second
	LeaderRetryBackoff = 5 * time.Second

	// Store key prefixes for records kept outside the message indexes.
	ChannelKeyPrefix = "ch:"
	GrantKeyPrefix   = "gr:"
	TokenKeyPrefix   = "tk:"
)
