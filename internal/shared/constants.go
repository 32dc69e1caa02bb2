package shared

import "time"

// HTTP Server Configuration
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Classification Configuration
const (
	DefaultInferTimeout = 30 * time.Second
	MaxImagePayloadSize = 10 << 20 // raw bytes after base64 decode
)

// Cache Configuration
const (
	ResultCacheTTL       = 30 * time.Minute
	ResultCacheKeyPrefix = "v1:classify:sha256:"
)

// Bucket Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	MaxFlushRetries     = 3
)

// API Configuration
const (
	APIKeyLength = 32
)
