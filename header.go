package kdbx

import (
	"bytes"
	"encoding/binary"
	"io"
)

// maxHeaderEntrySize bounds a single header entry so a corrupt length field
// cannot force a huge allocation.
const maxHeaderEntrySize = 16 * 1024 * 1024

// outerHeader holds the plaintext header fields needed to derive keys and
// decrypt the payload.
type outerHeader struct {
	major uint16
	minor uint16

	cipherID     [16]byte
	compression  uint32
	masterSeed   []byte
	encryptionIV []byte
	kdf          kdf

	// KDBX 3.1 only
	transformSeed      []byte
	transformRounds    uint64
	protectedStreamKey []byte
	streamStartBytes   []byte
	innerStreamID      uint32

	// raw is the header as read, signatures through end-of-header entry.
	raw []byte
}

type headerField struct {
	typ  uint8
	name string
}

func (h *outerHeader) wideEntries() bool {
	return h.major >= majorVersion4
}

// readOuterHeader reads and validates the outer header from r.
// Truncated input is reported as the raw read error.
func readOuterHeader(r io.Reader) (*outerHeader, error) {
	var raw bytes.Buffer
	tr := io.TeeReader(r, &raw)

	var prefix [12]byte
	if _, err := io.ReadFull(tr, prefix[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(prefix[0:4]) != signature1 ||
		binary.LittleEndian.Uint32(prefix[4:8]) != signature2 {
		return nil, ErrInvalidIdentifier
	}

	h := &outerHeader{
		minor: binary.LittleEndian.Uint16(prefix[8:10]),
		major: binary.LittleEndian.Uint16(prefix[10:12]),
	}
	if h.major != majorVersion3 && h.major != majorVersion4 {
		return nil, NewInvalidVersion(majorVersion4, h.major, h.minor)
	}

	seen := make(map[uint8]bool)
	var kdfParams []byte
	for {
		typ, data, err := readHeaderEntry(tr, h.wideEntries())
		if err != nil {
			return nil, err
		}
		if typ == hdrEndOfHeader {
			break
		}
		if err := h.setField(typ, data); err != nil {
			return nil, err
		}
		if typ == hdrKdfParameters {
			kdfParams = data
		}
		seen[typ] = true
	}
	h.raw = raw.Bytes()

	required := []headerField{
		{hdrCipherID, "CipherID"},
		{hdrCompressionFlags, "CompressionFlags"},
		{hdrMasterSeed, "MasterSeed"},
		{hdrEncryptionIV, "EncryptionIV"},
	}
	if h.wideEntries() {
		required = append(required, headerField{hdrKdfParameters, "KdfParameters"})
	} else {
		required = append(required,
			headerField{hdrTransformSeed, "TransformSeed"},
			headerField{hdrTransformRounds, "TransformRounds"},
			headerField{hdrProtectedStreamKey, "ProtectedStreamKey"},
			headerField{hdrStreamStartBytes, "StreamStartBytes"},
			headerField{hdrInnerRandomStreamID, "InnerRandomStreamID"},
		)
	}
	for _, f := range required {
		if !seen[f.typ] {
			return nil, NewIncompleteOuterHeader(f.name)
		}
	}

	if h.wideEntries() {
		k, err := parseKDFParameters(kdfParams)
		if err != nil {
			return nil, err
		}
		h.kdf = k
	} else {
		h.kdf = &aesKDF{seed: h.transformSeed, rounds: h.transformRounds}
	}
	return h, nil
}

// setField validates and stores one outer header entry.
func (h *outerHeader) setField(typ uint8, data []byte) error {
	v4 := h.wideEntries()
	switch typ {
	case hdrComment:
	case hdrCipherID:
		if len(data) != len(h.cipherID) {
			return NewInvalidOuterCipherID(data)
		}
		copy(h.cipherID[:], data)
		if _, ok := outerCiphers[h.cipherID]; !ok {
			return NewInvalidOuterCipherID(data)
		}
	case hdrCompressionFlags:
		if len(data) != 4 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.compression = binary.LittleEndian.Uint32(data)
		if h.compression != compressionNone && h.compression != compressionGzip {
			return NewInvalidCompressionSuite(h.compression)
		}
	case hdrMasterSeed:
		if len(data) != 32 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.masterSeed = data
	case hdrEncryptionIV:
		h.encryptionIV = data
	case hdrTransformSeed:
		if v4 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.transformSeed = data
	case hdrTransformRounds:
		if v4 || len(data) != 8 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.transformRounds = binary.LittleEndian.Uint64(data)
	case hdrProtectedStreamKey:
		if v4 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.protectedStreamKey = data
	case hdrStreamStartBytes:
		if v4 || len(data) != 32 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.streamStartBytes = data
	case hdrInnerRandomStreamID:
		if v4 || len(data) != 4 {
			return NewInvalidOuterHeaderEntry(typ)
		}
		h.innerStreamID = binary.LittleEndian.Uint32(data)
	case hdrKdfParameters, hdrPublicCustomData:
		if !v4 {
			return NewInvalidOuterHeaderEntry(typ)
		}
	default:
		return NewInvalidOuterHeaderEntry(typ)
	}
	return nil
}

// readHeaderEntry reads one [type][len][data] entry. KDBX 4 uses a 4-byte
// length, KDBX 3.1 a 2-byte length.
func readHeaderEntry(r io.Reader, wide bool) (uint8, []byte, error) {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return 0, nil, err
	}
	var n uint32
	if wide {
		var lb [4]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return 0, nil, err
		}
		n = binary.LittleEndian.Uint32(lb[:])
	} else {
		var lb [2]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return 0, nil, err
		}
		n = uint32(binary.LittleEndian.Uint16(lb[:]))
	}
	if n > maxHeaderEntrySize {
		return 0, nil, NewInvalidOuterHeaderEntry(typ[0])
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return typ[0], data, nil
}

// innerHeader holds the KDBX 4 inner header read from the decrypted payload.
type innerHeader struct {
	streamID  uint32
	streamKey []byte
	binaries  []Binary
}

// readInnerHeader parses the inner header at the start of payload and
// returns it with the remaining XML bytes.
func readInnerHeader(payload []byte) (*innerHeader, []byte, error) {
	ih := &innerHeader{}
	var haveID, haveKey bool
	rest := payload
	for {
		if len(rest) < 5 {
			return nil, nil, NewIncompleteInnerHeader("EndOfHeader")
		}
		typ := rest[0]
		n := binary.LittleEndian.Uint32(rest[1:5])
		rest = rest[5:]
		if uint64(n) > uint64(len(rest)) {
			return nil, nil, NewInvalidInnerHeaderEntry(typ)
		}
		data := rest[:n]
		rest = rest[n:]

		switch typ {
		case innerEndOfHeader:
			if !haveID {
				return nil, nil, NewIncompleteInnerHeader("InnerRandomStreamID")
			}
			if !haveKey {
				return nil, nil, NewIncompleteInnerHeader("InnerRandomStreamKey")
			}
			return ih, rest, nil
		case innerRandomStream:
			if len(data) != 4 {
				return nil, nil, NewInvalidInnerHeaderEntry(typ)
			}
			ih.streamID = binary.LittleEndian.Uint32(data)
			haveID = true
		case innerRandomKey:
			ih.streamKey = cloneBytes(data)
			haveKey = true
		case innerBinary:
			if len(data) < 1 {
				return nil, nil, NewInvalidInnerHeaderEntry(typ)
			}
			ih.binaries = append(ih.binaries, Binary{
				Protected: data[0]&innerBinaryProtect != 0,
				Data:      cloneBytes(data[1:]),
			})
		default:
			return nil, nil, NewInvalidInnerHeaderEntry(typ)
		}
	}
}
