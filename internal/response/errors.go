package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrProfessorOnly     ErrCode = "PROFESSOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// ─── Exam delivery ─────────────────────────────────────────────────
	ErrExamNotOpen       ErrCode = "EXAM_NOT_OPEN"
	ErrInvalidJoinCode   ErrCode = "INVALID_JOIN_CODE"
	ErrExamConfigMissing ErrCode = "EXAM_CONFIG_MISSING"
	ErrExamOver          ErrCode = "EXAM_OVER"
	ErrAlreadySubmitted  ErrCode = "ALREADY_SUBMITTED"
	ErrQuestionLocked    ErrCode = "QUESTION_LOCKED"
	ErrNoSelection       ErrCode = "NO_SELECTION"
	ErrChoiceOutOfRange  ErrCode = "CHOICE_OUT_OF_RANGE"
	ErrPersistenceFailed ErrCode = "PERSISTENCE_FAILED"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrNotSessionOwner   ErrCode = "NOT_SESSION_OWNER"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrQCMInUse          ErrCode = "QCM_IN_USE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrProfessorOnly:
		return "This resource is restricted to professors."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "This record is still referenced by other data."

	// ─── Exam delivery ─────────────────────────────────────────────────
	case ErrExamNotOpen:
		return "This exam is not currently open."
	case ErrInvalidJoinCode:
		return "Invalid or inactive session code."
	case ErrExamConfigMissing:
		return "No exam configuration found for this attempt."
	case ErrExamOver:
		return "Time is up. The exam duration has passed."
	case ErrAlreadySubmitted:
		return "You have already submitted this exam."
	case ErrQuestionLocked:
		return "This question's time window has closed."
	case ErrNoSelection:
		return "Select a choice before saving."
	case ErrChoiceOutOfRange:
		return "The selected choice does not exist for this question."
	case ErrPersistenceFailed:
		return "Your answer could not be saved. Try again while time remains."
	case ErrSubmissionFailed:
		return "The exam could not be submitted. Your answers are safe — retry."
	case ErrNotSessionOwner:
		return "You did not create this exam session."
	case ErrNoQuestions:
		return "This QCM has no questions."
	case ErrQCMInUse:
		return "This QCM is referenced by an exam session and cannot be deleted."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
