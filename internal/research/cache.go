package research

import (
	"context"
	"time"

	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

// PageCache 缓存已抽取的页面正文。
type PageCache interface {
	GetPage(ctx context.Context, link string) (text string, found bool, err error)
	SetPage(ctx context.Context, link, text string, ttl time.Duration) error
}

// CachingFetcher 在任意 Fetcher 前加一层页面缓存。缓存故障只记录日志，不影响抓取。
type CachingFetcher struct {
	next  Fetcher
	cache PageCache
	ttl   time.Duration
}

// NewCachingFetcher 创建带缓存的抓取器。
func NewCachingFetcher(next Fetcher, cache PageCache, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{next: next, cache: cache, ttl: ttl}
}

func (c *CachingFetcher) Fetch(ctx context.Context, link string) (string, error) {
	text, found, err := c.cache.GetPage(ctx, link)
	switch {
	case err != nil:
		metrics.PageCacheLookups.WithLabelValues("error").Inc()
		log.Warnw("page cache lookup failed", "url", link, "error", err)
	case found:
		metrics.PageCacheLookups.WithLabelValues("hit").Inc()
		return text, nil
	default:
		metrics.PageCacheLookups.WithLabelValues("miss").Inc()
	}

	text, err = c.next.Fetch(ctx, link)
	if err != nil {
		return "", err
	}
	// 只缓存成功且非空的抽取结果
	if text != "" {
		if err := c.cache.SetPage(ctx, link, text, c.ttl); err != nil {
			log.Warnw("page cache store failed", "url", link, "error", err)
		}
	}
	return text, nil
}
