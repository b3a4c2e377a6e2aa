package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is a contract violation or infrastructure failure carrying a stable code.
// Business validation problems are not AppErrors; they travel as validation.Result.
type AppError struct {
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code, so sentinels work with errors.Is
// even after WithMessage or Wrap produced a new value.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with a more specific message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
		Field:   e.Field,
		Cause:   e.Cause,
	}
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	// Dose state machine
	ErrInvalidTime            = &AppError{Code: "DOSE_001", Field: "time", Message: "time must be HH:MM (00:00-23:59)"}
	ErrDoseAlreadyTaken       = &AppError{Code: "DOSE_002", Field: "status", Message: "dose already marked as taken"}
	ErrDoseAlreadyMissed      = &AppError{Code: "DOSE_003", Field: "status", Message: "dose already marked as missed"}
	ErrTakenDoseToMissed      = &AppError{Code: "DOSE_004", Field: "status", Message: "cannot mark a taken dose as missed; reset first"}
	ErrAdministratorRequired  = &AppError{Code: "DOSE_005", Field: "administeredBy", Message: "completed doses must record who administered them"}
	ErrAdministratorForbidden = &AppError{Code: "DOSE_006", Field: "administeredBy", Message: "upcoming doses cannot carry an administrator"}
	ErrInvalidDoseStatus      = &AppError{Code: "DOSE_007", Field: "status", Message: "unknown dose status"}

	// Schedule
	ErrDuplicateDoseTime = &AppError{Code: "SCHED_001", Field: "schedule", Message: "two doses share the same time"}
	ErrDoseNotInSchedule = &AppError{Code: "SCHED_002", Field: "time", Message: "no dose scheduled at this time"}

	// Medication aggregate
	ErrIdentityRequired  = &AppError{Code: "MED_001", Field: "id", Message: "medication id and user id are required"}
	ErrNameRequired      = &AppError{Code: "MED_002", Field: "name", Message: "medication name is required"}
	ErrNameTooLong       = &AppError{Code: "MED_003", Field: "name", Message: "medication name exceeds 200 characters"}
	ErrNegativeStock     = &AppError{Code: "MED_004", Field: "currentStock", Message: "stock cannot be negative"}
	ErrInvalidAmount     = &AppError{Code: "MED_005", Field: "amount", Message: "amount must be greater than zero"}
	ErrInsufficientStock = &AppError{Code: "MED_006", Field: "currentStock", Message: "not enough stock"}
	ErrArchived          = &AppError{Code: "MED_007", Field: "isArchived", Message: "archived medications cannot be updated"}
	ErrArchiveWithStock  = &AppError{Code: "MED_008", Field: "currentStock", Message: "only medications without stock can be archived"}
	ErrActivateArchived  = &AppError{Code: "MED_009", Field: "active", Message: "archived medication cannot be activated; unarchive first"}
	ErrArchivedActive    = &AppError{Code: "MED_010", Field: "active", Message: "archived medication cannot be active"}

	// Command layer
	ErrDeletionNotConfirmed = &AppError{Code: "CMD_001", Field: "confirmDeletion", Message: "deletion must be explicitly confirmed"}
	ErrNameMismatch         = &AppError{Code: "CMD_002", Field: "medicationName", Message: "medication name does not match"}
	ErrLockTimeout          = &AppError{Code: "CMD_003", Message: "medication is being modified by another request"}

	// Storage
	ErrStoreUnavailable = &AppError{Code: "STORE_001", Message: "medication store unavailable"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}
	ErrRateLimited  = &AppError{Code: "AUTH_003", Message: "rate limit exceeded"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// As returns the first AppError in the chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
