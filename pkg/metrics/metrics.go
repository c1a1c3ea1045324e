// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"robo-chat-go/internal/model"
)

var (
	// AgentRequests 按 agent 与结果统计路由请求
	AgentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robo_chat_agent_requests_total",
		Help: "Routed agent requests by agent and outcome",
	}, []string{"agent", "outcome"})

	// ResearchLinks 按处理结果统计研究流程中的链接
	ResearchLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robo_chat_research_links_total",
		Help: "Research links processed by status",
	}, []string{"status"})

	ResearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "robo_chat_research_duration_seconds",
		Help:    "Wall-clock duration of deep research requests",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2min
	})

	PageCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robo_chat_page_cache_lookups_total",
		Help: "Page cache lookups by result",
	}, []string{"result"})

	// ExecutorRuns 统计沙箱执行结果
	ExecutorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robo_chat_executor_runs_total",
		Help: "Sandboxed code executions by outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robo_chat_active_sessions",
		Help: "Sessions currently held in memory",
	})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robo_chat_websocket_connections",
		Help: "Open chat websocket connections",
	})

	TurnEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robo_chat_turn_events_total",
		Help: "Conversation turn events handed to the event publisher by result",
	}, []string{"result"})
)

// OutcomeLabel 把失败类别转换为指标标签，成功为 "ok"。
func OutcomeLabel(f *model.Failure) string {
	if f == nil {
		return "ok"
	}
	return string(f.Kind)
}
