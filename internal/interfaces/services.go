package interfaces

import (
	"context"

	"fiscal-note-service/internal/models"
)

// AuthorizationService talks to the government authorization service.
// Implementations never fall back to an unauthenticated channel.
type AuthorizationService interface {
	// CheckStatus reports whether the service declares itself in
	// operation. Transport failures and unexpected codes are false,
	// never an error.
	CheckStatus(ctx context.Context) bool

	// Submit sends one signed document in a batch envelope and
	// interprets the nested batch/document status codes. Protocol-level
	// outcomes (authorized, rejected, service error) come back as the
	// result; the error return is reserved for misuse.
	Submit(ctx context.Context, signedXML string) (*models.AuthorizationResult, error)

	// Cancel registers a cancellation event for an authorized note.
	Cancel(ctx context.Context, accessKey, protocol, justification string) (*models.AuthorizationResult, error)
}

// ConfigRepository reads the single-row fiscal configuration.
type ConfigRepository interface {
	GetFiscalConfig(ctx context.Context) (*models.FiscalConfig, error)
}

// NoteRepository persists authorized notes.
type NoteRepository interface {
	// LastNote returns the most recent note by number descending, or
	// nil when none exists.
	LastNote(ctx context.Context) (*models.FiscalNote, error)

	// SaveAuthorizedNote inserts the note and its items transactionally:
	// both or neither.
	SaveAuthorizedNote(ctx context.Context, note *models.FiscalNote) error
}

// SequenceAllocator hands out (number, series) pairs. Each call
// consumes exactly one number; concurrent callers never receive the
// same one. Numbers are not returned on failure downstream.
type SequenceAllocator interface {
	AllocateNext(ctx context.Context) (models.SequenceAllocation, error)
}

// QRRenderer encodes a URL into an image suitable for a receipt.
type QRRenderer interface {
	Render(url string) (string, error)
}

// EmissionService is the end-to-end emission flow the HTTP surface
// exposes.
type EmissionService interface {
	Emit(ctx context.Context, items []models.LineItem, recipient models.Recipient) (*models.EmissionResult, error)
	Cancel(ctx context.Context, accessKey, protocol, justification string) (*models.CancellationResult, error)
	ServiceOnline(ctx context.Context) (bool, error)

	// Reload drops cached configuration and certificate material; the
	// next operation rebuilds them. Used after certificate rotation.
	Reload()
}
