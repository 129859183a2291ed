// Package s3errors classifies the error codes returned by S3-compatible
// services. Both object store drivers use it to decide which failures mean a
// missing bucket or object and to describe the rest.
package s3errors

import (
	"fmt"
	"net/http"
)

// Kind groups error codes by what a client can do about them.
type Kind int

// Error kinds.
const (
	// KindUnknown is any code not in the table.
	KindUnknown Kind = iota
	// KindObjectMissing means the key does not exist.
	KindObjectMissing
	// KindBucketMissing means the bucket does not exist.
	KindBucketMissing
	// KindAuth covers credential and permission failures.
	KindAuth
	// KindThrottle means the service asked the client to slow down.
	KindThrottle
	// KindTransient covers server-side failures worth retrying.
	KindTransient
	// KindIntegrity means the uploaded body did not match its declared
	// length or checksum.
	KindIntegrity
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindObjectMissing:
		return "object-missing"
	case KindBucketMissing:
		return "bucket-missing"
	case KindAuth:
		return "auth"
	case KindThrottle:
		return "throttle"
	case KindTransient:
		return "transient"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the request may succeed without any
// operator action.
func (k Kind) Retryable() bool {
	return k == KindThrottle || k == KindTransient || k == KindIntegrity
}

// S3Error describes a known S3 error code.
type S3Error struct {
	Code       string
	Message    string
	StatusCode int
	Kind       Kind
}

// Error implements the error interface.
func (e S3Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements error matching for errors.Is().
func (e S3Error) Is(target error) bool {
	if t, ok := target.(S3Error); ok {
		return e.Code == t.Code
	}

	return false
}

// Known error codes.
var (
	ErrNoSuchKey = S3Error{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		StatusCode: http.StatusNotFound,
		Kind:       KindObjectMissing,
	}
	// ErrNotFound is what HeadObject reports, since HEAD responses have no body.
	ErrNotFound = S3Error{
		Code:       "NotFound",
		Message:    "Not Found",
		StatusCode: http.StatusNotFound,
		Kind:       KindObjectMissing,
	}
	ErrNoSuchBucket = S3Error{
		Code:       "NoSuchBucket",
		Message:    "The specified bucket does not exist.",
		StatusCode: http.StatusNotFound,
		Kind:       KindBucketMissing,
	}
	ErrAccessDenied = S3Error{
		Code:       "AccessDenied",
		Message:    "Access Denied",
		StatusCode: http.StatusForbidden,
		Kind:       KindAuth,
	}
	ErrInvalidAccessKeyID = S3Error{
		Code:       "InvalidAccessKeyId",
		Message:    "The AWS access key ID you provided does not exist in our records.",
		StatusCode: http.StatusForbidden,
		Kind:       KindAuth,
	}
	ErrSignatureDoesNotMatch = S3Error{
		Code:       "SignatureDoesNotMatch",
		Message:    "The request signature we calculated does not match the signature you provided.",
		StatusCode: http.StatusForbidden,
		Kind:       KindAuth,
	}
	ErrExpiredToken = S3Error{
		Code:       "ExpiredToken",
		Message:    "The provided token has expired.",
		StatusCode: http.StatusBadRequest,
		Kind:       KindAuth,
	}
	ErrSlowDown = S3Error{
		Code:       "SlowDown",
		Message:    "Please reduce your request rate.",
		StatusCode: http.StatusServiceUnavailable,
		Kind:       KindThrottle,
	}
	ErrInternalError = S3Error{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		StatusCode: http.StatusInternalServerError,
		Kind:       KindTransient,
	}
	ErrServiceUnavailable = S3Error{
		Code:       "ServiceUnavailable",
		Message:    "The service is unable to handle the request.",
		StatusCode: http.StatusServiceUnavailable,
		Kind:       KindTransient,
	}
	ErrRequestTimeout = S3Error{
		Code:       "RequestTimeout",
		Message:    "Your socket connection to the server was not read from or written to within the timeout period.",
		StatusCode: http.StatusBadRequest,
		Kind:       KindTransient,
	}
	ErrIncompleteBody = S3Error{
		Code:       "IncompleteBody",
		Message:    "You did not provide the number of bytes specified by the Content-Length HTTP header.",
		StatusCode: http.StatusBadRequest,
		Kind:       KindIntegrity,
	}
	ErrBadDigest = S3Error{
		Code:       "BadDigest",
		Message:    "The Content-MD5 or checksum value that you specified did not match what the server received.",
		StatusCode: http.StatusBadRequest,
		Kind:       KindIntegrity,
	}
	ErrContentSHA256Mismatch = S3Error{
		Code:       "XAmzContentSHA256Mismatch",
		Message:    "The provided 'x-amz-content-sha256' header does not match what was computed.",
		StatusCode: http.StatusBadRequest,
		Kind:       KindIntegrity,
	}
)

var known = map[string]S3Error{}

func init() {
	for _, e := range []S3Error{
		ErrNoSuchKey, ErrNotFound, ErrNoSuchBucket,
		ErrAccessDenied, ErrInvalidAccessKeyID, ErrSignatureDoesNotMatch, ErrExpiredToken,
		ErrSlowDown, ErrInternalError, ErrServiceUnavailable, ErrRequestTimeout,
		ErrIncompleteBody, ErrBadDigest, ErrContentSHA256Mismatch,
	} {
		known[e.Code] = e
	}
}

// Lookup returns the known error for code.
func Lookup(code string) (S3Error, bool) {
	e, ok := known[code]
	return e, ok
}

// Classify returns the kind of code, or KindUnknown.
func Classify(code string) Kind {
	return known[code].Kind
}
