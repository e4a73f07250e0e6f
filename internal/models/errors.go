package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy of the emission subsystem. Every failure surfaces to
// the caller as one of these, wrapped with enough detail to display or
// log a reason. None are swallowed.
var (
	ErrConfigurationMissing        = errors.New("fiscal configuration missing")
	ErrCertificateUnreadable       = errors.New("certificate unreadable")
	ErrCertificateDecryptionFailed = errors.New("certificate decryption failed")
	ErrReferenceNotFound           = errors.New("signature reference element not found")
	ErrServiceUnavailable          = errors.New("authorization service unavailable")
	ErrPersistenceFailed           = errors.New("persistence failed")
)

// DocumentRejectedError is a terminal outcome for the allocated number:
// the authority refused the document and the number is not reused.
type DocumentRejectedError struct {
	Code   string
	Reason string
}

func (e *DocumentRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("document rejected (%s): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("document rejected: %s", e.Reason)
}

// AuthorizationFailedError covers transport, parse and batch-level
// failures where no per-document verdict was produced.
type AuthorizationFailedError struct {
	Reason string
}

func (e *AuthorizationFailedError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Reason)
}

// PersistenceAfterAuthorizationError is the reconcile case: the document
// is legally authorized but could not be recorded. It carries the key
// and protocol so operators can recover the note manually.
type PersistenceAfterAuthorizationError struct {
	AccessKey string
	Protocol  string
	Err       error
}

func (e *PersistenceAfterAuthorizationError) Error() string {
	return fmt.Sprintf("note %s authorized under protocol %s but not persisted: %v", e.AccessKey, e.Protocol, e.Err)
}

func (e *PersistenceAfterAuthorizationError) Unwrap() error { return ErrPersistenceFailed }
