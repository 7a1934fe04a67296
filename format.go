package kdbx

// File layout:
//
//	[sig1:4][sig2:4][minor:2][major:2][header entries...][payload]
//
// KDBX 3.1 header entries are [type:1][len:2][data:len].
// KDBX 4 header entries are [type:1][len:4][data:len] and the header is
// followed by its SHA-256 and HMAC-SHA-256, then the HMAC block stream.
//
// All integers are little-endian.

const (
	signature1 uint32 = 0x9AA2D903
	signature2 uint32 = 0xB54BFB67

	// Major versions this package reads.
	majorVersion3 uint16 = 3
	majorVersion4 uint16 = 4
)

// Outer header entry types.
const (
	hdrEndOfHeader         uint8 = 0
	hdrComment             uint8 = 1
	hdrCipherID            uint8 = 2
	hdrCompressionFlags    uint8 = 3
	hdrMasterSeed          uint8 = 4
	hdrTransformSeed       uint8 = 5 // KDBX 3.1
	hdrTransformRounds     uint8 = 6 // KDBX 3.1
	hdrEncryptionIV        uint8 = 7
	hdrProtectedStreamKey  uint8 = 8  // KDBX 3.1
	hdrStreamStartBytes    uint8 = 9  // KDBX 3.1
	hdrInnerRandomStreamID uint8 = 10 // KDBX 3.1
	hdrKdfParameters       uint8 = 11 // KDBX 4
	hdrPublicCustomData    uint8 = 12 // KDBX 4
)

// Inner header entry types (KDBX 4).
const (
	innerEndOfHeader   uint8 = 0
	innerRandomStream  uint8 = 1
	innerRandomKey     uint8 = 2
	innerBinary        uint8 = 3
	innerBinaryProtect byte  = 0x01
)

// Compression flags.
const (
	compressionNone uint32 = 0
	compressionGzip uint32 = 1
)

// Inner random stream IDs.
const (
	innerStreamNone     uint32 = 0
	innerStreamArcFour  uint32 = 1
	innerStreamSalsa20  uint32 = 2
	innerStreamChaCha20 uint32 = 3
)

// Outer cipher UUIDs.
var (
	cipherAES256 = [16]byte{
		0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50,
		0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff,
	}
	cipherTwofish = [16]byte{
		0xad, 0x68, 0xf2, 0x9f, 0x57, 0x6f, 0x4b, 0xb9,
		0xa3, 0x6a, 0xd4, 0x7a, 0xf9, 0x65, 0x34, 0x6c,
	}
	cipherChaCha20 = [16]byte{
		0xd6, 0x03, 0x8a, 0x2b, 0x8b, 0x6f, 0x4c, 0xb5,
		0xa5, 0x24, 0x33, 0x9a, 0x31, 0xdb, 0xb5, 0x9a,
	}
)

// KDF UUIDs.
var (
	kdfAES = [16]byte{
		0xc9, 0xd9, 0xf3, 0x9a, 0x62, 0x8a, 0x44, 0x60,
		0xbf, 0x74, 0x0d, 0x08, 0xc1, 0x8a, 0x4f, 0xea,
	}
	kdfArgon2d = [16]byte{
		0xef, 0x63, 0x6d, 0xdf, 0x8c, 0x29, 0x44, 0x4b,
		0x91, 0xf7, 0xa9, 0xa4, 0x03, 0xe3, 0x0a, 0x0c,
	}
	kdfArgon2id = [16]byte{
		0x9e, 0x29, 0x8b, 0x19, 0x56, 0xdb, 0x47, 0x73,
		0xb2, 0x3d, 0xfc, 0x3e, 0xc6, 0xf0, 0xa1, 0xe6,
	}
)

// Salsa20 inner stream nonce defined by the format.
var salsa20Nonce = [8]byte{0xE8, 0x30, 0x09, 0x4B, 0x97, 0x20, 0x5D, 0x2A}
