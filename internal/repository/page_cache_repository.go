// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PageCacheRepository 缓存研究流程抓取到的页面正文。
type PageCacheRepository interface {
	GetPage(ctx context.Context, link string) (string, bool, error)
	SetPage(ctx context.Context, link, text string, ttl time.Duration) error
}

type redisPageCacheRepository struct {
	redisClient *redis.Client
}

// NewPageCacheRepository 创建一个基于 Redis 的 PageCacheRepository 实例。
func NewPageCacheRepository(redisClient *redis.Client) PageCacheRepository {
	return &redisPageCacheRepository{redisClient: redisClient}
}

// pageKey 对 URL 取哈希，避免超长或含特殊字符的 key
func pageKey(link string) string {
	sum := sha1.Sum([]byte(link))
	return "research:page:" + hex.EncodeToString(sum[:])
}

// GetPage 从 Redis 获取页面正文，未命中时 found 为 false。
func (r *redisPageCacheRepository) GetPage(ctx context.Context, link string) (string, bool, error) {
	text, err := r.redisClient.Get(ctx, pageKey(link)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cached page: %w", err)
	}
	return text, true, nil
}

// SetPage 写入页面正文，ttl 为 0 时不过期。
func (r *redisPageCacheRepository) SetPage(ctx context.Context, link, text string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, pageKey(link), text, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached page: %w", err)
	}
	return nil
}
