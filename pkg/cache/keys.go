package cache

import "strings"

// Persistent key layout. Kept compatible with the mobile client's storage so
// a copied database can be inspected with the same tooling.
const (
	MessageKeyPrefix = "messageCache_"
	ThreadKey        = "threadCache_"
	MetadataKey      = "messageCacheMetadata"
)

func messageKey(threadGUID string) string {
	return MessageKeyPrefix + threadGUID
}

// threadFromKey returns the thread guid for a message cache key.
func threadFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, MessageKeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, MessageKeyPrefix), true
}

// isCacheKey reports whether key belongs to this cache.
func isCacheKey(key string) bool {
	return strings.HasPrefix(key, MessageKeyPrefix) ||
		strings.HasPrefix(key, ThreadKey) ||
		key == MetadataKey
}
