// Package kdbx reads KeePass KDBX 3.1 and KDBX 4 password databases and
// classifies every way opening one can fail.
//
// # Basic Usage
//
//	db, err := kdbx.OpenFile("vault.kdbx",
//	    kdbx.WithPassword(password),
//	    kdbx.WithKeyFile(keyFile), // optional
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	entry := db.FindEntry("GitHub")
//	fmt.Println(entry.UserName(), entry.Password())
//
// # Errors
//
// Open returns a *Error of one of four kinds:
//
//   - KindIO: the file or stream could not be read
//   - KindDatabaseIntegrity: the content is corrupt or was tampered with
//   - KindIncorrectKey: the password or key file is wrong
//   - KindInvalidKeyFile: the key file failed its own format check
//
// An integrity error carries a *DatabaseIntegrityError describing the exact
// failure with its context (block index, version numbers, unknown
// identifiers). Cryptographic primitive failures are one tier lower, as a
// *CryptoError inside an integrity error of kind Crypto. Every tier embeds
// the text of the tier below it:
//
//	kdbx: database integrity error: crypto error: argon2 key derivation failed: ...
//
// Errors work with errors.Is and errors.As:
//
//	if errors.Is(err, kdbx.ErrIncorrectKey) {
//	    // prompt for the password again
//	}
//	var ce *kdbx.CryptoError
//	if errors.As(err, &ce) && ce.Kind() == kdbx.CryptoArgon2 {
//	    // KDF parameters this build cannot honor
//	}
//
// Causes walks the chain of underlying errors for diagnostics.
//
// # Authentication
//
// Credentials are verified before any payload is interpreted: by the header
// HMAC in KDBX 4 and by the stream start bytes in KDBX 3.1. A wrong password
// is therefore always reported as ErrIncorrectKey, never as corruption.
//
// # Limits
//
// WithMaxDecompressedSize and WithMaxArgon2Memory bound the memory a hostile
// file can make Open allocate.
package kdbx
