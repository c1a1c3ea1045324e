package model

import "strings"

const (
	summarySeparator = "\n\n---\n\n"
	citationPrefix   = "🔗 "
)

// ResearchResult 是单次深度研究请求的临时结果，不做保留。
type ResearchResult struct {
	Query        string   `json:"query"`
	Summaries    []string `json:"summaries"`
	Sources      []string `json:"sources"`
	CombinedText string   `json:"combined_text"`
}

// NewResearchResult 按来源顺序拼接摘要。summaries 与 sources 一一对应。
func NewResearchResult(query string, summaries, sources []string) *ResearchResult {
	return &ResearchResult{
		Query:        query,
		Summaries:    summaries,
		Sources:      sources,
		CombinedText: strings.Join(summaries, summarySeparator),
	}
}

// Render 生成 "Summary of Findings" 与 "Sources" 两段文本。
func (r *ResearchResult) Render() string {
	var b strings.Builder
	b.WriteString("**Summary of Findings:**\n\n")
	b.WriteString(r.CombinedText)
	b.WriteString("\n\n**Sources:**\n")
	for i, src := range r.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(citationPrefix)
		b.WriteString(src)
	}
	return b.String()
}
