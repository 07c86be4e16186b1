package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the active token id of a user.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// TestStreamChannel returns the Redis PubSub channel for live events of a test.
func (r *CacheKeyStruct) TestStreamChannel(testID string) string {
	return fmt.Sprintf("test:%s:stream", testID)
}

var CacheKey = NewCacheKeyStruct()
