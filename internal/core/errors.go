package core

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies why a picture operation failed.
type ErrorKind string

const (
	KindUnauthorized     ErrorKind = "Unauthorized"
	KindMissing          ErrorKind = "Missing"
	KindInvalid          ErrorKind = "Invalid"
	KindExists           ErrorKind = "Exists"
	KindTransformFailure ErrorKind = "TransformFailure"
	KindStorageFailure   ErrorKind = "StorageFailure"
)

// Response messages
const (
	MessageUnauthorized   = "Unauthorized"
	MessageMissing        = "Missing picture"
	MessageInvalid        = "Picture must be one of .gif, .png or .jpg"
	MessageInvalidCaption = "Caption is too long"
	MessageCreated        = "Picture created"
	MessageUpdated        = "Picture updated"
	MessageNotSaved       = "Picture not saved"
	MessageExists         = "Picture already exists"
	MessageDeleted        = "Picture deleted"
	MessageUnavailable    = "Picture store unavailable"
)

// Error is a failed picture operation, carrying the HTTP status it maps to.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errUnauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: MessageUnauthorized}
}

// errNotFound is a lookup miss.
func errNotFound() *Error {
	return &Error{Kind: KindMissing, Status: http.StatusNotFound, Message: MessageMissing}
}

// errNoUpload is a mutation without an uploaded picture.
func errNoUpload() *Error {
	return &Error{Kind: KindMissing, Status: http.StatusBadRequest, Message: MessageMissing}
}

// errNothingToReplace is a PUT on a key that holds no picture.
func errNothingToReplace() *Error {
	return &Error{Kind: KindMissing, Status: http.StatusForbidden, Message: MessageMissing}
}

func errInvalid(message string, err error) *Error {
	return &Error{Kind: KindInvalid, Status: http.StatusBadRequest, Message: message, Err: err}
}

func errExists() *Error {
	return &Error{Kind: KindExists, Status: http.StatusForbidden, Message: MessageExists}
}

func errTransform(err error) *Error {
	return &Error{Kind: KindTransformFailure, Status: http.StatusForbidden, Message: MessageNotSaved, Err: err}
}

func errStorage(err error) *Error {
	return &Error{Kind: KindStorageFailure, Status: http.StatusInternalServerError, Message: MessageNotSaved, Err: err}
}

// errStoreRead is a failed lookup in the picture store.
func errStoreRead(err error) *Error {
	return &Error{Kind: KindStorageFailure, Status: http.StatusInternalServerError, Message: MessageUnavailable, Err: err}
}
