package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldOwnerID     = "owner_id"
	FieldRecordID    = "record_id"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldSyncState   = "sync_state"
	FieldBackend     = "backend"
	FieldPushed      = "pushed"
	FieldPulled      = "pulled"
	FieldDuration    = "duration_ms"
	FieldQueue       = "queue"
	FieldExchange    = "exchange"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentStorage = "storage"
	ComponentRemote  = "remote"
	ComponentSync    = "sync"
	ComponentWorker  = "worker"
	ComponentAMQP    = "amqp"
	ComponentObserve = "observe"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpPush     = "push"
	OpPull     = "pull"
	OpSync     = "sync"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
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

// WithRecord adds record identity fields
func (f LogFields) WithRecord(recordID, ownerID string) LogFields {
	f[FieldRecordID] = recordID
	f[FieldOwnerID] = ownerID
	return f
}

// WithSyncPass adds the per-pass counters emitted after each bulk sync
func (f LogFields) WithSyncPass(pushed, pulled int) LogFields {
	f[FieldPushed] = pushed
	f[FieldPulled] = pulled
	return f
}

// Args flattens the fields into slog-style key/value pairs
func (f LogFields) Args() []any {
	args := make([]any, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, v)
	}
	return args
}
