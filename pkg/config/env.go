package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvOperatingTimezone = "OPERATING_TIMEZONE"
	EnvNoticeHours       = "NOTICE_HOURS"
	EnvSlotLockTTL       = "SLOT_LOCK_TTL"
	EnvDefaultServiceID  = "DEFAULT_SERVICE_ID"

	EnvCalendarIDs             = "CALENDAR_IDS"
	EnvCalendarCredentialsFile = "CALENDAR_CREDENTIALS_FILE"
	EnvMirrorTimeout           = "MIRROR_TIMEOUT"

	EnvKafkaBrokers      = "KAFKA_BROKERS"
	EnvKafkaBookingTopic = "KAFKA_BOOKING_TOPIC"
)
