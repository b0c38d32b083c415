package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)
	m.ObserveChatTurn("patient", "ok")
	m.ObserveToolCall("book_appointment", "success", 0.02)
	m.ObserveToolCall("book_appointment", "slot_taken", 0.01)
	m.ObserveLLM("ok", 1.2)
	m.ObserveNotification("email", nil)
	m.ObserveNotification("email", errors.New("boom"))

	if got := counterValue(t, m.toolCalls.WithLabelValues("book_appointment", "success")); got != 1 {
		t.Fatalf("expected 1 successful booking call, got %v", got)
	}
	if got := counterValue(t, m.notifications.WithLabelValues("email", "failed")); got != 1 {
		t.Fatalf("expected 1 failed email, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 metric families, got %d", len(families))
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveChatTurn("doctor", "ok")
	m.ObserveToolCall("list_doctors", "success", 0.1)
	m.ObserveLLM("timeout", 30)
	m.ObserveNotification("slack", nil)
}
