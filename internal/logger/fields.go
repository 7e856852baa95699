package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried through the call chain on the context logger.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldReportID  = "report_id"
	FieldIModelID  = "imodel_id"
	FieldRunID     = "run_id"
)

// Metric fields, attached per log line.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldState      = "state"
)
