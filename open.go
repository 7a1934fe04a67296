package kdbx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"os"
)

// Open decodes a KDBX 3.1 or KDBX 4 database from r.
//
// Example:
//
//	db, err := kdbx.Open(f, kdbx.WithPassword("hunter2"))
//	if errors.Is(err, kdbx.ErrIncorrectKey) {
//	    // ask for the password again
//	}
//
// Every failure is returned as a *Error. A KDBX 4 header is checked against
// its SHA-256 before any key is derived. Credentials are checked before the
// payload is decoded: KDBX 4 by the header HMAC, KDBX 3.1 by the stream
// start bytes. A wrong password therefore yields ErrIncorrectKey rather than
// an integrity error.
func Open(r io.Reader, opts ...Option) (*Database, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := open(r, cfg)
	if err != nil {
		return nil, Lift(err)
	}
	return db, nil
}

// OpenFile opens and decodes the database at path.
func OpenFile(path string, opts ...Option) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FromIO(err)
	}
	defer f.Close()
	return Open(f, opts...)
}

func open(r io.Reader, cfg *config) (*Database, error) {
	h, err := readOuterHeader(r)
	if err != nil {
		return nil, err
	}
	var storedHMAC []byte
	if h.major == majorVersion4 {
		if storedHMAC, err = readHeaderTrailer(r, h); err != nil {
			return nil, err
		}
	}

	composite, err := compositeKey(cfg.components)
	if err != nil {
		return nil, err
	}
	transformed, err := h.kdf.transform(composite, cfg)
	if err != nil {
		return nil, err
	}
	masterKey := sha256Concat(h.masterSeed, transformed)

	var db *Database
	if h.major == majorVersion4 {
		db, err = openV4(r, h, storedHMAC, transformed, masterKey, cfg)
	} else {
		db, err = openV3(r, h, masterKey, cfg)
	}
	if err != nil {
		return nil, err
	}
	db.Major, db.Minor = h.major, h.minor
	db.Cipher = outerCiphers[h.cipherID].name
	return db, nil
}

// readHeaderTrailer reads the KDBX 4 [sha256:32][hmac-sha256:32] trailer,
// verifies the header hash and returns the stored header HMAC.
func readHeaderTrailer(r io.Reader, h *outerHeader) ([]byte, error) {
	trailer := make([]byte, 64)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(h.raw)
	if !bytes.Equal(sum[:], trailer[:32]) {
		return nil, ErrHeaderHashMismatch
	}
	return trailer[32:], nil
}

func openV4(r io.Reader, h *outerHeader, storedHMAC, transformed, masterKey []byte, cfg *config) (*Database, error) {
	base := hmacBaseKey(h.masterSeed, transformed)
	if !hmac.Equal(headerHMAC(base, h.raw), storedHMAC) {
		return nil, ErrIncorrectKey
	}

	ciphertext, err := readHMACBlocks(r, base)
	if err != nil {
		return nil, err
	}
	plaintext, err := decryptPayload(h.cipherID, masterKey, h.encryptionIV, ciphertext)
	if err != nil {
		return nil, err
	}
	payload, err := decompress(plaintext, h.compression, cfg.maxDecompressedSize)
	if err != nil {
		return nil, err
	}

	ih, xmlData, err := readInnerHeader(payload)
	if err != nil {
		return nil, err
	}
	stream, err := newInnerStream(ih.streamID, ih.streamKey)
	if err != nil {
		return nil, err
	}
	db, err := parseXML(xmlData, stream, cfg.maxDecompressedSize)
	if err != nil {
		return nil, err
	}
	db.Binaries = ih.binaries
	return db, nil
}

func openV3(r io.Reader, h *outerHeader, masterKey []byte, cfg *config) (*Database, error) {
	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	oc := outerCiphers[h.cipherID]
	plaintext, err := oc.decrypt(masterKey, h.encryptionIV, ciphertext)
	if err != nil {
		return nil, err
	}

	// The start bytes authenticate the key before padding is examined.
	if len(plaintext) < len(h.streamStartBytes) ||
		subtle.ConstantTimeCompare(plaintext[:len(h.streamStartBytes)], h.streamStartBytes) != 1 {
		return nil, ErrIncorrectKey
	}
	if oc.padded() {
		if plaintext, err = pkcs7Unpad(plaintext, oc.blockSize); err != nil {
			return nil, err
		}
		if len(plaintext) < len(h.streamStartBytes) {
			return nil, NewCryptoError(CryptoBlockMode, errPaddingOverlapsStart)
		}
	}

	blocks, err := readHashedBlocks(plaintext[len(h.streamStartBytes):])
	if err != nil {
		return nil, err
	}
	payload, err := decompress(blocks, h.compression, cfg.maxDecompressedSize)
	if err != nil {
		return nil, err
	}
	stream, err := newInnerStream(h.innerStreamID, h.protectedStreamKey)
	if err != nil {
		return nil, err
	}
	db, err := parseXML(payload, stream, cfg.maxDecompressedSize)
	if err != nil {
		return nil, err
	}
	if db.Meta.HeaderHash != nil {
		sum := sha256.Sum256(h.raw)
		if !bytes.Equal(sum[:], db.Meta.HeaderHash) {
			return nil, ErrHeaderHashMismatch
		}
	}
	return db, nil
}

func sha256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
