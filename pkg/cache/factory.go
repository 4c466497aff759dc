package cache

import (
	"fmt"
	"strings"
)

// New 根据配置创建缓存实例
func New(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
