package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for chat turns, tool dispatch and notifications.
type ChatMetrics struct {
	chatTurns     *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolLatency   *prometheus.HistogramVec
	llmLatency    *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "chat",
			Name:      "chat_turns_total",
			Help:      "Total chat turns by role and outcome",
		}, []string{"role", "outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "tools",
			Name:      "tool_calls_total",
			Help:      "Total tool executions by tool and status",
		}, []string{"tool", "status"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medassist",
			Subsystem: "tools",
			Name:      "tool_duration_seconds",
			Help:      "Latency of tool executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medassist",
			Subsystem: "llm",
			Name:      "llm_request_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total outbound notifications by channel and status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.chatTurns, m.toolCalls, m.toolLatency, m.llmLatency, m.notifications)
	return m
}

func (m *ChatMetrics) ObserveChatTurn(role, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(role, outcome).Inc()
}

func (m *ChatMetrics) ObserveToolCall(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(seconds)
}

func (m *ChatMetrics) ObserveLLM(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ChatMetrics) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}
