package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Judge (compile, evaluate, validate) errors
// 17000-17999: Lesson corpus & batch validation errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Infrastructure errors (10400-10499)
	StorageError      ErrorCode = 10400
	MessageQueueError ErrorCode = 10401

	// ========== Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	CodeEmpty            ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003
	CodeRejected         ErrorCode = 13004

	// Judge (13100-13199)
	JudgeQueueFull    ErrorCode = 13100
	JudgeSystemError  ErrorCode = 13101
	CompilationError  ErrorCode = 13102
	RuntimeError      ErrorCode = 13103
	TimeLimitExceeded ErrorCode = 13104
	AssertionFailed   ErrorCode = 13107

	// Test cases (13200-13299)
	TestCaseInvalid   ErrorCode = 13200
	TestCaseDuplicate ErrorCode = 13201

	// ========== Lesson & Batch Errors (17000-17999) ==========

	CorpusLoadFailed     ErrorCode = 17000
	LessonNotFound       ErrorCode = 17001
	LessonInvalid        ErrorCode = 17002
	StepValidationFailed ErrorCode = 17100
	ReportWriteFailed    ErrorCode = 17101
	ReportUploadFailed   ErrorCode = 17102
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	StorageError:      "Object storage operation failed",
	MessageQueueError: "Message queue operation failed",

	// Submission
	CodeEmpty:            "Code cannot be empty",
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Language not supported",
	CodeRejected:         "Code rejected",

	// Judge
	JudgeQueueFull:    "Judge queue is full, please try again later",
	JudgeSystemError:  "Judge system error",
	CompilationError:  "Compilation error",
	RuntimeError:      "Runtime error",
	TimeLimitExceeded: "Test timeout",
	AssertionFailed:   "Test assertion failed",

	TestCaseInvalid:   "Invalid test case",
	TestCaseDuplicate: "Duplicate test case id",

	// Lessons
	CorpusLoadFailed:     "Failed to load lesson corpus",
	LessonNotFound:       "Lesson not found",
	LessonInvalid:        "Invalid lesson definition",
	StepValidationFailed: "Step validation failed",
	ReportWriteFailed:    "Failed to write validation report",
	ReportUploadFailed:   "Failed to upload validation report",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == LessonNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == CodeEmpty, c == LanguageNotSupported:
		return 400
	case c == TestCaseInvalid, c == TestCaseDuplicate:
		return 400
	case c == CodeTooLarge:
		return 413
	default:
		return 500
	}
}
