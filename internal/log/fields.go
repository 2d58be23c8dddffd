package log

// Canonical field name constants for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldEvent     = "event"

	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"

	FieldRule       = "rule"
	FieldPrefix     = "prefix"
	FieldTarget     = "target"
	FieldUpstream   = "upstream_path"
	FieldBaseURL    = "api_base_url"
	FieldProfile    = "profile"
	FieldConfigFile = "config_file"
)
