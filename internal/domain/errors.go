package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeClassNotFound       Code = "CLASS_NOT_FOUND"
	CodeStudentNotFound     Code = "STUDENT_NOT_FOUND"
	CodeNotFound            Code = "NOT_FOUND"
	CodeNotEnrolled         Code = "NOT_ENROLLED"
	CodeDuplicateRollNumber Code = "DUPLICATE_ROLL_NUMBER"
	CodeDuplicateEnrollment Code = "DUPLICATE_ENROLLMENT"
	CodeDuplicateEmail      Code = "DUPLICATE_EMAIL"
	CodeInvalidDate         Code = "INVALID_DATE"
	CodeEmptyEnrollmentSet  Code = "EMPTY_ENROLLMENT_SET"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL"
)

// Error is a domain failure carrying a stable code.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrClassNotFound       = &Error{Code: CodeClassNotFound, Message: "class not found"}
	ErrStudentNotFound     = &Error{Code: CodeStudentNotFound, Message: "student not found"}
	ErrNotEnrolled         = &Error{Code: CodeNotEnrolled, Message: "student is not enrolled in this class"}
	ErrDuplicateRollNumber = &Error{Code: CodeDuplicateRollNumber, Message: "roll number already exists in class"}
	ErrDuplicateEnrollment = &Error{Code: CodeDuplicateEnrollment, Message: "student already enrolled in class"}
	ErrInvalidDate         = &Error{Code: CodeInvalidDate, Message: "invalid date"}
	ErrEmptyEnrollmentSet  = &Error{Code: CodeEmptyEnrollmentSet, Message: "at least one class is required"}
)

// Storage sentinels returned by Store implementations.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
)

// CodeOf extracts the code of err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to the response status of the API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeClassNotFound, CodeStudentNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateRollNumber, CodeDuplicateEnrollment, CodeDuplicateEmail:
		return http.StatusConflict
	case CodeInvalidDate, CodeEmptyEnrollmentSet, CodeInvalidArgument, CodeNotEnrolled:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
