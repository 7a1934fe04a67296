package kdbx

import (
	"errors"
)

// Constructors for the integrity taxonomy. Each stage reports the narrowest
// variant through one of these; identifier bytes are copied.

// NewInvalidVersion reports a file whose major version is not supported.
func NewInvalidVersion(required, fileMajor, fileMinor uint16) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidVersion, required: required, fileMajor: fileMajor, fileMinor: fileMinor}
}

// NewInvalidOuterHeaderEntry reports an unknown or malformed outer header entry.
func NewInvalidOuterHeaderEntry(entryType uint8) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidOuterHeaderEntry, code: uint32(entryType)}
}

// NewIncompleteOuterHeader reports a required outer header field that is missing.
func NewIncompleteOuterHeader(field string) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: IncompleteOuterHeader, field: field}
}

// NewInvalidInnerHeaderEntry reports an unknown or malformed inner header entry.
func NewInvalidInnerHeaderEntry(entryType uint8) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidInnerHeaderEntry, code: uint32(entryType)}
}

// NewIncompleteInnerHeader reports a required inner header field that is missing.
func NewIncompleteInnerHeader(field string) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: IncompleteInnerHeader, field: field}
}

// NewInvalidKDFVersion reports an unknown Argon2 version.
func NewInvalidKDFVersion(version uint32) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidKDFVersion, code: version}
}

// NewInvalidKDFUUID reports an unknown key derivation function UUID.
func NewInvalidKDFUUID(uuid []byte) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidKDFUUID, id: cloneBytes(uuid)}
}

// NewMissingKDFParam reports a KDF parameter that is absent.
func NewMissingKDFParam(key string) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: MissingKDFParam, field: key}
}

// NewMistypedKDFParam reports a KDF parameter stored with the wrong type.
func NewMistypedKDFParam(key string) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: MistypedKDFParam, field: key}
}

// NewInvalidVariantDictionaryVersion reports an unsupported variant dictionary version.
func NewInvalidVariantDictionaryVersion(version uint16) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidVariantDictionaryVersion, code: uint32(version)}
}

// NewInvalidVariantDictionaryValueType reports an unknown variant dictionary value type.
func NewInvalidVariantDictionaryValueType(valueType uint8) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidVariantDictionaryValueType, code: uint32(valueType)}
}

// NewInvalidOuterCipherID reports an unknown outer cipher UUID.
func NewInvalidOuterCipherID(id []byte) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidOuterCipherID, id: cloneBytes(id)}
}

// NewInvalidInnerCipherID reports an unknown inner random stream ID.
func NewInvalidInnerCipherID(id uint32) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidInnerCipherID, code: id}
}

// NewInvalidCompressionSuite reports an unknown compression flag.
func NewInvalidCompressionSuite(id uint32) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: InvalidCompressionSuite, code: id}
}

// NewBlockHashMismatch reports a payload block that failed its hash or HMAC.
func NewBlockHashMismatch(blockIndex uint64) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: BlockHashMismatch, blockIndex: blockIndex}
}

// IntegrityFromCrypto lifts a crypto failure into the integrity tier.
func IntegrityFromCrypto(e *CryptoError) *DatabaseIntegrityError {
	if e == nil {
		return nil
	}
	return &DatabaseIntegrityError{kind: Crypto, cause: e}
}

// IntegrityFromXML lifts an XML decoding error from the payload.
func IntegrityFromXML(err error) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: XMLParsing, cause: err}
}

// IntegrityFromBase64 lifts a base64 decoding error from the payload.
func IntegrityFromBase64(err error) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: Base64, cause: err}
}

// IntegrityFromUTF8 lifts a UTF-8 validation error from the payload.
func IntegrityFromUTF8(err error) *DatabaseIntegrityError {
	return &DatabaseIntegrityError{kind: UTF8, cause: err}
}

// FromIntegrity lifts an integrity error into an operation outcome.
func FromIntegrity(e *DatabaseIntegrityError) *Error {
	if e == nil {
		return nil
	}
	return &Error{kind: KindDatabaseIntegrity, integrity: e}
}

// FromCrypto lifts a crypto failure through both tiers at once.
func FromCrypto(e *CryptoError) *Error {
	return FromIntegrity(IntegrityFromCrypto(e))
}

// FromIO lifts a read failure into an operation outcome.
func FromIO(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindIO, cause: err}
}

// Lift maps any error returned by a decoding stage to an operation outcome.
// Taxonomy errors are widened to the top tier; every other error is treated
// as an IO failure and kept whole as its cause. Lift(nil) returns nil.
//
// A taxonomy value found beneath a non-taxonomy wrapper, such as
// fmt.Errorf("stage: %w", ErrIncorrectKey), is lifted as that value alone:
// its kind and context survive but the wrapper's text does not. Decoding
// stages return taxonomy values unwrapped, so Open never loses text this way.
func Lift(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var die *DatabaseIntegrityError
	if errors.As(err, &die) {
		return FromIntegrity(die)
	}
	var ce *CryptoError
	if errors.As(err, &ce) {
		return FromCrypto(ce)
	}
	return FromIO(err)
}

// Causes returns the causal chain beneath err, nearest first. It follows
// Cause where an error provides one and errors.Unwrap otherwise.
func Causes(err error) []error {
	var chain []error
	for err != nil {
		err = nextCause(err)
		if err != nil {
			chain = append(chain, err)
		}
	}
	return chain
}

func nextCause(err error) error {
	if c, ok := err.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
