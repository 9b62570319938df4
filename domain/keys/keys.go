package keys

import "strings"

// Key prefixes, the first component of every redis key and channel
const (
	PfxMetadata     = "assetMetadata"
	PfxInvalidation = "invalidation"
	PfxPayToken     = "payToken"
)

const sep = ":"

// RedisKey joins components with ':'
func RedisKey(components ...string) string {
	return strings.Join(components, sep)
}

// GetPrefix returns the first two components of a key, or the first one for
// two component keys. It is only used to tag metrics.
func GetPrefix(key string) string {
	parts := strings.SplitN(key, sep, 3)
	switch len(parts) {
	case 3:
		return parts[0] + sep + parts[1]
	case 2:
		return parts[0]
	}
	return ""
}
