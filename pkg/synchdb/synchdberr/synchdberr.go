// Package synchdberr declares the sentinel error kinds shared across the
// conversion and application pipeline. Callers compare with errors.Is;
// package boundaries wrap these with fmt.Errorf("...: %w", err) to add
// context without losing the sentinel.
package synchdberr

import "errors"

var (
	// ErrMalformedEvent indicates a JSON/protobuf decode failure or a
	// required field absent from a change event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrMalformedEventSchema indicates the event body parsed but its
	// schema block could not be interpreted.
	ErrMalformedEventSchema = errors.New("malformed event schema")

	// ErrUnknownColumn indicates a change event references a column not
	// present in the destination schema cache entry.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrTableNotFound indicates a destination table lookup failed.
	ErrTableNotFound = errors.New("table not found")

	// ErrSchemaNotFound indicates a destination schema lookup failed.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrUnknownTimeRepresentation indicates a temporal decode had no
	// resolvable epoch unit.
	ErrUnknownTimeRepresentation = errors.New("unknown time representation")

	// ErrNoPrimaryKey indicates an UPDATE or DELETE in text-SQL mode
	// carried no primary-key column.
	ErrNoPrimaryKey = errors.New("no primary key columns in record")

	// ErrUnsupportedDdl indicates source DDL fell outside the whitelist.
	ErrUnsupportedDdl = errors.New("unsupported ddl")

	// ErrApply indicates the destination rejected a SQL statement or
	// tuple operation.
	ErrApply = errors.New("apply error")

	// ErrInvalidTransition indicates a lifecycle state machine rejected
	// a requested transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRequestBusy indicates a connector's single-slot request
	// mailbox already held a pending request.
	ErrRequestBusy = errors.New("request mailbox busy")

	// ErrTransportError indicates a socket, protobuf frame, or runner
	// bridge failure.
	ErrTransportError = errors.New("transport error")

	// ErrMalformedIdentifier indicates an identifier string had more
	// dot-separated parts than the calling context allows.
	ErrMalformedIdentifier = errors.New("malformed identifier")
)
