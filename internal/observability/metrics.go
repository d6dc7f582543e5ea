package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_api_requests_total", Help: "HTTP requests by route and status"},
		[]string{"route", "status"},
	)
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_webhook_deliveries_total", Help: "Inbound webhook deliveries"},
		[]string{"platform", "outcome"},
	)
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_provider_requests_total", Help: "AI provider call outcomes"},
		[]string{"result", "http_status"},
	)
	ProviderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "botgw_provider_latency_seconds", Help: "AI provider call latency"},
	)
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_tool_calls_total", Help: "Commerce agent tool executions"},
		[]string{"tool", "result"},
	)
	ChatStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_chat_streams_total", Help: "Client chat stream outcomes"},
		[]string{"endpoint", "result"},
	)
	ReplyEnqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_reply_enqueue_total", Help: "Reply delivery enqueue results"},
		[]string{"result"},
	)
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "botgw_outbound_sends_total", Help: "Platform send outcomes"},
		[]string{"platform", "result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, WebhookDeliveries, ProviderRequests, ProviderLatency,
		ToolCalls, ChatStreams, ReplyEnqueues, OutboundSends)
}
