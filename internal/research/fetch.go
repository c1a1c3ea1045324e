package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"robo-chat-go/internal/config"
)

// Fetcher 抓取页面并返回清洗后的正文文本。
type Fetcher interface {
	Fetch(ctx context.Context, link string) (string, error)
}

var whitespace = regexp.MustCompile(`\s+`)

// HTTPFetcher 通过 HTTP GET 抓取页面，取全部 <p> 段落文本。
type HTTPFetcher struct {
	userAgent string
	client    *http.Client
}

// NewHTTPFetcher 创建带单次请求超时的抓取器。
func NewHTTPFetcher(cfg config.ResearchConfig) *HTTPFetcher {
	return &HTTPFetcher{
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s for url: %s", resp.Status, link)
	}
	return ExtractParagraphs(resp.Body)
}

// ExtractParagraphs 以空格连接所有段落文本并折叠空白。
func ExtractParagraphs(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	parts := doc.Find("p").Map(func(_ int, p *goquery.Selection) string {
		return p.Text()
	})
	text := strings.Join(parts, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " ")), nil
}
