package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldTool        = "tool"
	FieldExpenseID   = "expense_id"
	FieldDate        = "date"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldResultCount = "result_count"
	FieldTransport   = "transport"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentMCP        = "mcp"
	ComponentExpense    = "expense"
	ComponentStorage    = "storage"
	ComponentCategories = "categories"
	ComponentAMQP       = "amqp"
)

// Operations defines standard operation names
const (
	OpInsert    = "insert"
	OpList      = "list"
	OpSummarize = "summarize"
	OpPublish   = "publish"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
