// Package cache provides the Cache interface and an in-process LRU
// implementation, Memory. The response-cache plugin keeps its own map and
// does not use this package.
package cache

import "github.com/ferrogate/gateway/providers"

// Cache defines the interface for response caching.
type Cache interface {
	Get(key string) (*providers.Response, bool)
	Set(key string, resp *providers.Response)
	Delete(key string)
	Len() int
	Clear()
}
