package schema

import (
	"errors"
	"fmt"
)

// Errors shared by the store, the evidence builder and the sync layer.
//
// Check them with errors.Is; callers wrap them with operation context:
//
//	if errors.Is(err, schema.ErrValidation) {
//	    // reject the user action, nothing was persisted
//	}
var (
	// ErrValidation is the parent of every input error detected before a
	// write touches storage.
	ErrValidation = errors.New("validation failed")

	// ErrMissingWorker is returned when no worker was selected.
	ErrMissingWorker = fmt.Errorf("%w: missing worker", ErrValidation)

	// ErrMissingDate is returned when no (or an unparseable) date was selected.
	ErrMissingDate = fmt.Errorf("%w: missing date", ErrValidation)

	// ErrInvalidImage is returned when the evidence image is empty or
	// cannot be decoded and re-encoded.
	ErrInvalidImage = fmt.Errorf("%w: invalid image", ErrValidation)

	// ErrInvalidKind is returned for an event kind other than check-in or check-out.
	ErrInvalidKind = fmt.Errorf("%w: invalid event kind", ErrValidation)

	// ErrUnknownWorker is returned when evidence references a worker id
	// that is not in the local store.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNotFound is returned by the store when a key is absent.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable wraps every failure of the local storage engine
	// (cannot open, statement failure, aborted transaction).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRemoteNotFound is returned when the remote document does not exist.
	// It is never retried.
	ErrRemoteNotFound = errors.New("remote document not found")

	// ErrRemoteTransient is returned for any other non-success response or
	// transport failure. It is retried.
	ErrRemoteTransient = errors.New("remote request failed")

	// ErrRemoteSyncFailed is returned once the retry budget is exhausted.
	ErrRemoteSyncFailed = errors.New("remote sync failed")

	// ErrRecognitionUnavailable is returned by recognizers that cannot
	// produce fields. It is advisory and never fails a write.
	ErrRecognitionUnavailable = errors.New("recognition unavailable")
)
