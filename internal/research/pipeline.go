package research

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

const (
	DefaultMaxResults         = 3
	DefaultSummaryTokens      = 1000
	DefaultSummarizeThreshold = 200
)

// Summarizer 将长文本压缩到 token 预算内。
type Summarizer interface {
	Summarize(text string, maxTokens int) model.Outcome
}

// Options 配置研究流程。TotalTimeout 为 0 时不设整体截止时间。
type Options struct {
	MaxResults         int
	SummaryTokens      int
	SummarizeThreshold int
	TotalTimeout       time.Duration
}

// Pipeline 依次执行搜索、抓取与摘要，并组装带引用的答案。
type Pipeline struct {
	searcher   Searcher
	fetcher    Fetcher
	summarizer Summarizer
	opts       Options
}

// NewPipeline 创建研究流程，未设置的选项使用默认值。
func NewPipeline(searcher Searcher, fetcher Fetcher, summarizer Summarizer, opts Options) *Pipeline {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.SummaryTokens <= 0 {
		opts.SummaryTokens = DefaultSummaryTokens
	}
	if opts.SummarizeThreshold <= 0 {
		opts.SummarizeThreshold = DefaultSummarizeThreshold
	}
	return &Pipeline{searcher: searcher, fetcher: fetcher, summarizer: summarizer, opts: opts}
}

// Research 返回结构化的研究结果。搜索失败或无结果时整体短路，不会抓取任何页面。
func (p *Pipeline) Research(ctx context.Context, query string) (*model.ResearchResult, *model.Failure) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &model.Failure{Kind: model.KindEmptyInput, Message: "No research query provided."}
	}

	start := time.Now()
	defer func() {
		metrics.ResearchDuration.Observe(time.Since(start).Seconds())
	}()

	if p.opts.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TotalTimeout)
		defer cancel()
	}

	links, failure := p.searcher.Search(ctx, query, p.opts.MaxResults)
	if failure != nil {
		log.Warnw("research search failed", "query", query, "error", failure)
		return nil, failure
	}
	if len(links) == 0 {
		return nil, &model.Failure{Kind: model.KindNoContent, Message: "No results found."}
	}

	// 严格按顺序处理，单个链接失败不影响其余链接
	summaries := make([]string, 0, len(links))
	for _, link := range links {
		if ctx.Err() != nil {
			metrics.ResearchLinks.WithLabelValues("skipped").Inc()
			summaries = append(summaries, "❌ Skipped: research deadline exceeded")
			continue
		}
		summaries = append(summaries, p.summarizeLink(ctx, link))
	}

	return model.NewResearchResult(query, summaries, links), nil
}

// Answer 返回渲染后的研究答案。
func (p *Pipeline) Answer(ctx context.Context, query string) model.Outcome {
	result, failure := p.Research(ctx, query)
	if failure != nil {
		return model.Outcome{Err: failure}
	}
	return model.Succeed(result.Render())
}

func (p *Pipeline) summarizeLink(ctx context.Context, link string) string {
	text, err := p.fetcher.Fetch(ctx, link)
	if err != nil {
		log.Warnw("research fetch failed", "url", link, "error", err)
		metrics.ResearchLinks.WithLabelValues("error").Inc()
		return fmt.Sprintf("❌ Error fetching content: %v", err)
	}

	if utf8.RuneCountInString(text) > p.opts.SummarizeThreshold {
		metrics.ResearchLinks.WithLabelValues("summarized").Inc()
		return p.summarizer.Summarize(text, p.opts.SummaryTokens).Display()
	}
	if text == "" {
		metrics.ResearchLinks.WithLabelValues("empty").Inc()
		return "⚠️ No article text found."
	}
	metrics.ResearchLinks.WithLabelValues("ok").Inc()
	return text
}
