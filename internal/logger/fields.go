package logger

// Field names shared by structured log lines.
const (
	FieldJobID      = "job_id"
	FieldAgent      = "agent"
	FieldKey        = "key"
	FieldBackend    = "backend"
	FieldPath       = "path"
	FieldCount      = "count"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldMatch      = "match"
	FieldSource     = "source"
	FieldAddress    = "address"
	FieldClients    = "clients"
)
