package wire

// Reserved record keys.
const (
	KeyModuleName    = "__module_name__"
	KeyMembers       = "__members__"
	KeyClassName     = "__class_name__"
	KeyEnumName      = "__enum_name__"
	KeyEnumValue     = "__enum_value__"
	KeyInstanceID    = "__instance_id__"
	KeyDict          = "__dict__"
	KeyFunctionName  = "__function_name__"
	KeyIsMethod      = "__is_method__"
	KeyPropertyName  = "__property_name__"
	KeyPropertyValue = "__property_value__"
	KeyFunctionArgs  = "__function_args__"
	KeyFunctionKw    = "__function_kwargs__"
	KeyExceptionName = "__exception_class_name__"
	KeyMessage       = "__msg__"
	KeyTraceback     = "__traceback__"
	KeyType          = "__type__"
	KeyValue         = "__value__"
	KeyCallbackID    = "__callback_function_id__"
	KeyBatchRequests = "__batch_requests__"
	KeyRequestName   = "__request_name__"
	KeyRequest       = "__request__"
)

const (
	// SetType is the KeyType value of a set record.
	SetType = "set"

	// BatchEvent is the request name under which batch requests are sent.
	BatchEvent = "__batch__"

	// NewFunction is the function name that constructs an instance of the
	// class passed as the first argument.
	NewFunction = "__new__"
)

// DefaultNamespace is the transport namespace the API is served on.
const DefaultNamespace = "/alias"

// Events handled by the server namespace itself. Every other event is a
// request named after the function or property it targets.
const (
	EventGetAPI     = "get_alias_api"
	EventGetAPIInfo = "get_alias_api_info"
	EventLoadAPI    = "load_alias_api"
	EventServerInfo = "server_info"
	EventRestart    = "restart"
	EventShutdown   = "shutdown"
)
