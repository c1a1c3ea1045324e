// Package research 实现深度研究流程：搜索、抓取、摘要与引用。
package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
)

// Searcher 返回按页面顺序排列的结果链接。
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, *model.Failure)
}

// DuckDuckGoSearcher 解析 DuckDuckGo 的 HTML 结果页。
type DuckDuckGoSearcher struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewDuckDuckGoSearcher 根据研究配置创建搜索器。SearchRate <= 0 表示不限速。
func NewDuckDuckGoSearcher(cfg config.ResearchConfig) *DuckDuckGoSearcher {
	limit := rate.Inf
	if cfg.SearchRate > 0 {
		limit = rate.Limit(cfg.SearchRate)
	}
	return &DuckDuckGoSearcher{
		endpoint:  cfg.SearchURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string, maxResults int) ([]string, *model.Failure) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Search failed: %v", err), Cause: err}
	}

	searchURL := s.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Search failed: %v", err), Cause: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Search failed: %v", err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Search failed: %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &model.Failure{Kind: model.KindParse, Message: fmt.Sprintf("Search failed: %v", err), Cause: err}
	}
	return ParseResultLinks(doc, maxResults), nil
}

// ParseResultLinks 提取至多 maxResults 个 a.result__a 链接，并还原 DuckDuckGo 跳转地址。
func ParseResultLinks(doc *goquery.Document, maxResults int) []string {
	links := make([]string, 0, maxResults)
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(links) >= maxResults {
			return false
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		if link := resolveLink(href); link != "" {
			links = append(links, link)
		}
		return true
	})
	return links
}

// resolveLink 处理 //duckduckgo.com/l/?uddg=ENCODED_URL 形式的跳转链接
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.Contains(href, "uddg=") {
		if strings.HasPrefix(href, "//") {
			href = "https:" + href
		}
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return ""
}
