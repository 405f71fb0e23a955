package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all Focus metrics instruments.
type Metrics struct {
	RequestDuration  metric.Float64Histogram
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	LedgerRecorded   metric.Int64Counter
	LedgerDropped    metric.Int64Counter
	LedgerWriteFails metric.Int64Counter
	ActionsPruned    metric.Int64Counter
	SessionsActive   metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("focus.http.requests",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("focus.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("focus.tool.errors",
		metric.WithDescription("Tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	m.LedgerRecorded, err = meter.Int64Counter("focus.ledger.recorded",
		metric.WithDescription("Action records written to the ledger"),
	)
	if err != nil {
		return nil, err
	}

	m.LedgerDropped, err = meter.Int64Counter("focus.ledger.dropped",
		metric.WithDescription("Action records dropped due to a full queue"),
	)
	if err != nil {
		return nil, err
	}

	m.LedgerWriteFails, err = meter.Int64Counter("focus.ledger.write_errors",
		metric.WithDescription("Action record write failures"),
	)
	if err != nil {
		return nil, err
	}

	m.ActionsPruned, err = meter.Int64Counter("focus.retention.pruned",
		metric.WithDescription("Read action records deleted by retention"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter("focus.mcp.sessions",
		metric.WithDescription("Currently open protocol sessions"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
