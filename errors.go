package kdbx

import (
	"encoding/hex"
	"fmt"
)

// CryptoErrorKind identifies which cryptographic primitive failed.
type CryptoErrorKind int

const (
	// CryptoArgon2 indicates the Argon2 key derivation could not run.
	CryptoArgon2 CryptoErrorKind = iota + 1

	// CryptoInvalidKeyLength indicates a symmetric key had the wrong length.
	CryptoInvalidKeyLength

	// CryptoInvalidKeyIVLength indicates a block cipher key or IV had the wrong length.
	CryptoInvalidKeyIVLength

	// CryptoInvalidKeyNonceLength indicates a stream cipher key or nonce had the wrong length.
	CryptoInvalidKeyNonceLength

	// CryptoBlockMode indicates a block mode check failed (e.g. PKCS#7 padding).
	CryptoBlockMode
)

func (k CryptoErrorKind) String() string {
	switch k {
	case CryptoArgon2:
		return "argon2 key derivation failed"
	case CryptoInvalidKeyLength:
		return "invalid key length"
	case CryptoInvalidKeyIVLength:
		return "invalid key/IV length"
	case CryptoInvalidKeyNonceLength:
		return "invalid key/nonce length"
	case CryptoBlockMode:
		return "block mode failure"
	}
	return fmt.Sprintf("CryptoErrorKind(%d)", int(k))
}

// CryptoError classifies a failure of a key-derivation or cipher primitive.
// It retains the primitive's own error as its cause.
type CryptoError struct {
	kind  CryptoErrorKind
	cause error
}

// NewCryptoError classifies cause as a crypto failure of the given kind.
func NewCryptoError(kind CryptoErrorKind, cause error) *CryptoError {
	return &CryptoError{kind: kind, cause: cause}
}

// Kind returns the failed primitive.
func (e *CryptoError) Kind() CryptoErrorKind { return e.kind }

// Cause returns the primitive's error, or nil.
func (e *CryptoError) Cause() error { return e.cause }

func (e *CryptoError) Unwrap() error { return e.cause }

func (e *CryptoError) Error() string {
	if e.cause == nil {
		return "crypto error: " + e.kind.String()
	}
	return fmt.Sprintf("crypto error: %s: %v", e.kind, e.cause)
}

// IntegrityKind identifies why the container failed validation.
type IntegrityKind int

const (
	// Structural violations.
	InvalidIdentifier IntegrityKind = iota + 1
	InvalidVersion
	InvalidOuterHeaderEntry
	IncompleteOuterHeader
	InvalidInnerHeaderEntry
	IncompleteInnerHeader

	// KDF negotiation.
	InvalidKDFVersion
	InvalidKDFUUID
	MissingKDFParam
	MistypedKDFParam
	InvalidVariantDictionaryVersion
	InvalidVariantDictionaryValueType

	// Unknown algorithm identifiers.
	InvalidOuterCipherID
	InvalidInnerCipherID
	InvalidCompressionSuite

	// Post-decryption integrity.
	HeaderHashMismatch
	BlockHashMismatch

	Compression

	// Payload decoding.
	XMLParsing
	UTF8
	Base64

	Crypto
)

func (k IntegrityKind) String() string {
	switch k {
	case InvalidIdentifier:
		return "invalid identifier"
	case InvalidVersion:
		return "invalid version"
	case InvalidOuterHeaderEntry:
		return "invalid outer header entry"
	case IncompleteOuterHeader:
		return "incomplete outer header"
	case InvalidInnerHeaderEntry:
		return "invalid inner header entry"
	case IncompleteInnerHeader:
		return "incomplete inner header"
	case InvalidKDFVersion:
		return "invalid KDF version"
	case InvalidKDFUUID:
		return "invalid KDF UUID"
	case MissingKDFParam:
		return "missing KDF parameter"
	case MistypedKDFParam:
		return "mistyped KDF parameter"
	case InvalidVariantDictionaryVersion:
		return "invalid variant dictionary version"
	case InvalidVariantDictionaryValueType:
		return "invalid variant dictionary value type"
	case InvalidOuterCipherID:
		return "invalid outer cipher ID"
	case InvalidInnerCipherID:
		return "invalid inner cipher ID"
	case InvalidCompressionSuite:
		return "invalid compression suite"
	case HeaderHashMismatch:
		return "header hash mismatch"
	case BlockHashMismatch:
		return "block hash mismatch"
	case Compression:
		return "decompression failed"
	case XMLParsing:
		return "malformed XML"
	case UTF8:
		return "malformed UTF-8"
	case Base64:
		return "malformed base64"
	case Crypto:
		return "crypto failure"
	}
	return fmt.Sprintf("IntegrityKind(%d)", int(k))
}

// DatabaseIntegrityError reports that the container content is structurally
// or cryptographically invalid. Context fields are fixed at construction.
type DatabaseIntegrityError struct {
	kind IntegrityKind

	blockIndex uint64
	required   uint16 // InvalidVersion: major version this library reads
	fileMajor  uint16
	fileMinor  uint16
	code       uint32 // entry type, value type, KDF version, dictionary version or algorithm code
	field      string // header field or KDF parameter name
	id         []byte // KDF UUID or outer cipher ID

	cause error // *CryptoError or a payload decode error
}

// Kind returns the integrity failure class.
func (e *DatabaseIntegrityError) Kind() IntegrityKind { return e.kind }

// BlockIndex returns the index of the block that failed verification.
func (e *DatabaseIntegrityError) BlockIndex() uint64 { return e.blockIndex }

// Version returns the major version required by this library and the
// version declared by the file.
func (e *DatabaseIntegrityError) Version() (required, fileMajor, fileMinor uint16) {
	return e.required, e.fileMajor, e.fileMinor
}

// Code returns the raw numeric tag or identifier carried by the error.
func (e *DatabaseIntegrityError) Code() uint32 { return e.code }

// Field returns the name of the missing or mistyped field.
func (e *DatabaseIntegrityError) Field() string { return e.field }

// ID returns a copy of the unrecognized identifier bytes.
func (e *DatabaseIntegrityError) ID() []byte { return cloneBytes(e.id) }

// Cause returns the wrapped crypto or decode error, or nil.
func (e *DatabaseIntegrityError) Cause() error { return e.cause }

func (e *DatabaseIntegrityError) Unwrap() error { return e.cause }

// Is reports whether target is an integrity error of the same kind.
func (e *DatabaseIntegrityError) Is(target error) bool {
	t, ok := target.(*DatabaseIntegrityError)
	return ok && t.kind == e.kind
}

func (e *DatabaseIntegrityError) Error() string {
	return "database integrity error: " + e.detail()
}

func (e *DatabaseIntegrityError) detail() string {
	switch e.kind {
	case InvalidIdentifier:
		return "invalid KDBX identifier"
	case InvalidVersion:
		return fmt.Sprintf("unsupported KDBX version (required %d, file version %d.%d)",
			e.required, e.fileMajor, e.fileMinor)
	case InvalidOuterHeaderEntry:
		return fmt.Sprintf("invalid outer header entry with type %d", e.code)
	case IncompleteOuterHeader:
		return "missing field in outer header: " + e.field
	case InvalidInnerHeaderEntry:
		return fmt.Sprintf("invalid inner header entry with type %d", e.code)
	case IncompleteInnerHeader:
		return "missing field in inner header: " + e.field
	case InvalidKDFVersion:
		return fmt.Sprintf("invalid KDF version: %d", e.code)
	case InvalidKDFUUID:
		return "invalid KDF UUID: " + hex.EncodeToString(e.id)
	case MissingKDFParam:
		return "missing field in KDF parameters: " + e.field
	case MistypedKDFParam:
		return fmt.Sprintf("KDF parameter %s has wrong type", e.field)
	case InvalidVariantDictionaryVersion:
		return fmt.Sprintf("invalid variant dictionary version: %d", e.code)
	case InvalidVariantDictionaryValueType:
		return fmt.Sprintf("invalid variant dictionary value type: %d", e.code)
	case InvalidOuterCipherID:
		return "invalid outer cipher ID: " + hex.EncodeToString(e.id)
	case InvalidInnerCipherID:
		return fmt.Sprintf("invalid inner cipher ID: %d", e.code)
	case InvalidCompressionSuite:
		return fmt.Sprintf("invalid compression suite ID: %d", e.code)
	case HeaderHashMismatch:
		return "hash mismatch when verifying header"
	case BlockHashMismatch:
		return fmt.Sprintf("hash mismatch in block %d", e.blockIndex)
	case Compression:
		return "decompression failed"
	case XMLParsing:
		return fmt.Sprintf("malformed XML payload: %v", e.cause)
	case UTF8:
		return fmt.Sprintf("malformed UTF-8 string: %v", e.cause)
	case Base64:
		return fmt.Sprintf("malformed base64 string: %v", e.cause)
	case Crypto:
		return fmt.Sprint(e.cause)
	}
	return e.kind.String()
}

// Kind identifies the outcome of a failed open operation.
type Kind int

const (
	// KindIO indicates the file or stream could not be read.
	KindIO Kind = iota + 1

	// KindDatabaseIntegrity indicates the content is corrupt or was tampered with.
	KindDatabaseIntegrity

	// KindIncorrectKey indicates the credentials were rejected.
	KindIncorrectKey

	// KindInvalidKeyFile indicates the key file failed its own format check.
	KindInvalidKeyFile
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindDatabaseIntegrity:
		return "database integrity error"
	case KindIncorrectKey:
		return "incorrect key"
	case KindInvalidKeyFile:
		return "invalid key file"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the result of a failed Open. It is always one of the four kinds;
// callers branch on Kind and descend into Integrity for finer diagnosis.
type Error struct {
	kind      Kind
	integrity *DatabaseIntegrityError
	cause     error // KindIO only
}

var (
	// ErrIncorrectKey indicates the password or key file does not open the database.
	ErrIncorrectKey = &Error{kind: KindIncorrectKey}

	// ErrInvalidKeyFile indicates the key file is malformed.
	ErrInvalidKeyFile = &Error{kind: KindInvalidKeyFile}
)

// Sentinels for integrity failures that carry no context.
var (
	ErrInvalidIdentifier  = &DatabaseIntegrityError{kind: InvalidIdentifier}
	ErrHeaderHashMismatch = &DatabaseIntegrityError{kind: HeaderHashMismatch}
	ErrDecompression      = &DatabaseIntegrityError{kind: Compression}
)

// Kind returns the outcome class.
func (e *Error) Kind() Kind { return e.kind }

// Integrity returns the integrity error carried by a KindDatabaseIntegrity
// error, or nil.
func (e *Error) Integrity() *DatabaseIntegrityError { return e.integrity }

// Cause returns the failure underneath e: the IO error, or the cause of the
// carried integrity error. Credential outcomes have no cause.
func (e *Error) Cause() error {
	switch e.kind {
	case KindIO:
		return e.cause
	case KindDatabaseIntegrity:
		if e.integrity != nil {
			return e.integrity.Cause()
		}
	case KindIncorrectKey, KindInvalidKeyFile:
	}
	return nil
}

// Unwrap exposes the IO error or the integrity error to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e.integrity != nil {
		return e.integrity
	}
	return e.cause
}

// Is matches the context-free sentinels ErrIncorrectKey and ErrInvalidKeyFile.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.integrity == nil && t.cause == nil && t.kind == e.kind
}

func (e *Error) Error() string {
	switch e.kind {
	case KindIO:
		return fmt.Sprintf("kdbx: io error: %v", e.cause)
	case KindDatabaseIntegrity:
		return "kdbx: " + e.integrity.Error()
	case KindIncorrectKey:
		return "kdbx: incorrect key specified"
	case KindInvalidKeyFile:
		return "kdbx: key file format invalid"
	}
	return "kdbx: " + e.kind.String()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
