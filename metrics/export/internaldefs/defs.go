package internaldefs

import (
	agentAuth "github.com/MrEthical07/agentAuth"
)

// CounterDef maps a counter to its exported name.
type CounterDef struct {
	ID   agentAuth.MetricID
	Name string
	Help string
}

// HistogramDef maps a latency histogram to its exported name.
type HistogramDef struct {
	ID   agentAuth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: agentAuth.MetricFlowBegin, Name: "agentauth_flow_begin_total", Help: "Sign-in flows started."},
	{ID: agentAuth.MetricFlowAlreadyActive, Name: "agentauth_flow_already_active_total", Help: "Begin calls rejected because a flow was already active."},
	{ID: agentAuth.MetricFlowContinueSuccess, Name: "agentauth_flow_continue_success_total", Help: "Continuations that produced a token."},
	{ID: agentAuth.MetricFlowContinueFailure, Name: "agentauth_flow_continue_failure_total", Help: "Continuations rejected by the provider."},
	{ID: agentAuth.MetricFlowFailed, Name: "agentauth_flow_failed_total", Help: "Flows that ran out of attempts."},
	{ID: agentAuth.MetricNoActiveFlow, Name: "agentauth_no_active_flow_total", Help: "Continuations with no active flow."},
	{ID: agentAuth.MetricTokenHit, Name: "agentauth_token_hit_total", Help: "Token lookups that found a token."},
	{ID: agentAuth.MetricTokenMiss, Name: "agentauth_token_miss_total", Help: "Token lookups that found none."},
	{ID: agentAuth.MetricTokenExchange, Name: "agentauth_token_exchange_total", Help: "Successful on-behalf-of exchanges."},
	{ID: agentAuth.MetricTokenExchangeFailure, Name: "agentauth_token_exchange_failure_total", Help: "Failed on-behalf-of exchanges."},
	{ID: agentAuth.MetricSignOut, Name: "agentauth_sign_out_total", Help: "Handler sign-outs."},
	{ID: agentAuth.MetricFlowConflict, Name: "agentauth_flow_conflict_total", Help: "Flow record writes retried after a version conflict."},
	{ID: agentAuth.MetricConcurrentModification, Name: "agentauth_concurrent_modification_total", Help: "Flow operations that exhausted their conflict retries."},
}

var HistogramDefs = []HistogramDef{
	{ID: agentAuth.MetricOpenFlowLatency, Name: "agentauth_flow_transaction_latency_seconds", Help: "Latency of a flow record transaction."},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues are HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
