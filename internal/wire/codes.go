package wire

// ResultCode is the 4-byte signed result taxonomy exchanged on the wire
// (spec §6). Negative values are errors; NO_ERROR is the only success
// value other than the request-specific codes below zero that are not
// errors in the usual sense (START_REGISTRATION, WRONG_PASSWORD).
type ResultCode int32

// Result codes, values fixed by spec §6.
const (
	NoError                     ResultCode = 0
	ErrorGeneric                ResultCode = -1
	StringSizeInvalid           ResultCode = -2
	StringSizeExceedingMaximum  ResultCode = -3
	TTYError                    ResultCode = -4
	SyscallError                ResultCode = -5
	OperationAborted            ResultCode = -6
	NullParameters              ResultCode = -7
	ExitProgram                 ResultCode = -99
	StartRegistration           ResultCode = -100
	WrongPassword               ResultCode = -101
	UserNotFound                ResultCode = -102
)

// String renders a human-readable name for logging.
func (c ResultCode) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case ErrorGeneric:
		return "ERROR"
	case StringSizeInvalid:
		return "STRING_SIZE_INVALID"
	case StringSizeExceedingMaximum:
		return "STRING_SIZE_EXCEEDING_MAXIMUM"
	case TTYError:
		return "TTY_ERROR"
	case SyscallError:
		return "SYSCALL_ERROR"
	case OperationAborted:
		return "OPERATION_ABORTED"
	case NullParameters:
		return "NULL_PARAMETERS"
	case ExitProgram:
		return "EXIT_PROGRAM"
	case StartRegistration:
		return "START_REGISTRATION"
	case WrongPassword:
		return "WRONG_PASSWORD"
	case UserNotFound:
		return "USER_NOT_FOUND"
	default:
		return "UNKNOWN_RESULT_CODE"
	}
}

// MessageCode is the 4-byte signed command/status taxonomy (spec §6).
type MessageCode int32

// Message codes, values fixed by spec §6.
const (
	RequestLoadPreviousMessages  MessageCode = 1
	RequestListRegisteredUsers  MessageCode = 2
	RequestSendMessage          MessageCode = 3
	RequestLoadMessage          MessageCode = 4
	RequestLoadSpecificMessage  MessageCode = 5
	RequestDeleteMessage        MessageCode = 6
	RequestLoadUnreadMessages   MessageCode = 7
	MessageError                MessageCode = -1
	MessageOperationAborted     MessageCode = -2
	MessageNotFound             MessageCode = -3
	Logout                      MessageCode = -4
)

// String renders a human-readable name for logging.
func (c MessageCode) String() string {
	switch c {
	case RequestLoadPreviousMessages:
		return "REQUEST_LOAD_PREVIOUS_MESSAGES"
	case RequestListRegisteredUsers:
		return "REQUEST_LIST_REGISTERED_USERS"
	case RequestSendMessage:
		return "REQUEST_SEND_MESSAGE"
	case RequestLoadMessage:
		return "REQUEST_LOAD_MESSAGE"
	case RequestLoadSpecificMessage:
		return "REQUEST_LOAD_SPECIFIC_MESSAGE"
	case RequestDeleteMessage:
		return "REQUEST_DELETE_MESSAGE"
	case RequestLoadUnreadMessages:
		return "REQUEST_LOAD_UNREAD_MESSAGES"
	case MessageError:
		return "MESSAGE_ERROR"
	case MessageOperationAborted:
		return "MESSAGE_OPERATION_ABORTED"
	case MessageNotFound:
		return "MESSAGE_NOT_FOUND"
	case Logout:
		return "LOGOUT"
	default:
		return "UNKNOWN_MESSAGE_CODE"
	}
}
