package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorKind   = "error_kind"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldGroupID     = "group_id"
	FieldGroupCode   = "group_code"
	FieldPage        = "page"
	FieldLimit       = "limit"
	FieldSeq         = "seq"
	FieldAmount      = "amount"
	FieldTxType      = "transaction_type"
	FieldQueryKey    = "query_key"
	FieldEventType   = "event_type"
	FieldClientIP    = "client_ip"
	FieldAddr        = "addr"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentGateway    = "gateway"
	ComponentSession    = "session"
	ComponentCredstore  = "credstore"
	ComponentCache      = "cache"
	ComponentQuery      = "query"
	ComponentCollection = "collection"
	ComponentLedger     = "ledger"
	ComponentEvents     = "events"
	ComponentExport     = "export"
	ComponentDevServer  = "devserver"
)

// Operations defines standard operation names
const (
	OpLogin       = "login"
	OpLogout      = "logout"
	OpRegister    = "register"
	OpListGroups  = "list_groups"
	OpCreateGroup = "create_group"
	OpJoinGroup   = "join_group"
	OpGroupMeta   = "group_meta"
	OpPage        = "transaction_page"
	OpRecord      = "record_transaction"
	OpInvalidate  = "invalidate"
	OpExport      = "export"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPage adds the pagination cursor of a transaction page request
func (f LogFields) WithPage(groupID string, page, limit int) LogFields {
	f[FieldGroupID] = groupID
	f[FieldPage] = page
	f[FieldLimit] = limit
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
