package kdbx

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20"
)

// Deterministic fixture material.
var (
	testMasterSeed    = seq(0, 32)
	testTransformSeed = seq(32, 32)
	testStreamKey     = seq(64, 64)
	testStartBytes    = seq(128, 32)
	testUUID          = seq(200, 16)
	testAttachment    = []byte("attachment payload")
)

func seq(start, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

func u16le(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32le(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func u64le(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

type vdEntry struct {
	typ   uint8
	key   string
	value []byte
}

// variantDictBytes encodes a variant dictionary.
func variantDictBytes(version uint16, entries ...vdEntry) []byte {
	var b bytes.Buffer
	b.Write(u16le(version))
	for _, e := range entries {
		b.WriteByte(e.typ)
		b.Write(u32le(uint32(len(e.key))))
		b.WriteString(e.key)
		b.Write(u32le(uint32(len(e.value))))
		b.Write(e.value)
	}
	b.WriteByte(vdEnd)
	return b.Bytes()
}

func aesKDFParams(rounds uint64) []byte {
	return variantDictBytes(variantDictVersion,
		vdEntry{vdByteArray, kdfParamUUID, kdfAES[:]},
		vdEntry{vdUInt64, kdfParamRounds, u64le(rounds)},
		vdEntry{vdByteArray, kdfParamSalt, testTransformSeed},
	)
}

func argon2Params(id [16]byte, memory uint64, version uint32) []byte {
	return variantDictBytes(variantDictVersion,
		vdEntry{vdByteArray, kdfParamUUID, id[:]},
		vdEntry{vdByteArray, kdfParamSalt, testTransformSeed},
		vdEntry{vdUInt32, kdfParamParallelism, u32le(1)},
		vdEntry{vdUInt64, kdfParamMemory, u64le(memory)},
		vdEntry{vdUInt64, kdfParamIterations, u64le(1)},
		vdEntry{vdUInt32, kdfParamVersion, u32le(version)},
	)
}

type headerEntry struct {
	typ  uint8
	data []byte
}

// testDB builds KDBX files for tests.
type testDB struct {
	major       uint16
	minor       uint16
	cipherID    [16]byte
	compression uint32
	kdfParams   []byte // KDBX 4
	rounds      uint64 // KDBX 3.1
	streamID    uint32
	key         []KeyComponent
	blockSize   int
	extra       []headerEntry // appended before end-of-header
	xml         func(protect func(string) string, headerHash []byte) string
}

func newTestDB() *testDB {
	return &testDB{
		major:       majorVersion4,
		minor:       1,
		cipherID:    cipherAES256,
		compression: compressionGzip,
		kdfParams:   aesKDFParams(10),
		rounds:      10,
		streamID:    innerStreamChaCha20,
		key:         []KeyComponent{Password("secret")},
		blockSize:   1024 * 1024,
		xml:         sampleXML,
	}
}

func newTestDBv3() *testDB {
	d := newTestDB()
	d.major, d.minor = majorVersion3, 1
	d.streamID = innerStreamSalsa20
	return d
}

// built is an encoded database with the offsets tests need to corrupt it.
type built struct {
	data         []byte
	headerLen    int
	blockOffsets []int // KDBX 4: start of each block's [hmac][size][data]
}

func (d *testDB) ivLen() int {
	if d.cipherID == cipherChaCha20 {
		return 12
	}
	return 16
}

func (d *testDB) build(t testing.TB) built {
	t.Helper()
	v4 := d.major >= majorVersion4
	iv := seq(160, d.ivLen())

	var hdr bytes.Buffer
	hdr.Write(u32le(signature1))
	hdr.Write(u32le(signature2))
	hdr.Write(u16le(d.minor))
	hdr.Write(u16le(d.major))
	entry := func(typ uint8, data []byte) {
		hdr.WriteByte(typ)
		if v4 {
			hdr.Write(u32le(uint32(len(data))))
		} else {
			hdr.Write(u16le(uint16(len(data))))
		}
		hdr.Write(data)
	}
	entry(hdrCipherID, d.cipherID[:])
	entry(hdrCompressionFlags, u32le(d.compression))
	entry(hdrMasterSeed, testMasterSeed)
	entry(hdrEncryptionIV, iv)
	if v4 {
		entry(hdrKdfParameters, d.kdfParams)
	} else {
		entry(hdrTransformSeed, testTransformSeed)
		entry(hdrTransformRounds, u64le(d.rounds))
		entry(hdrProtectedStreamKey, testStreamKey)
		entry(hdrStreamStartBytes, testStartBytes)
		entry(hdrInnerRandomStreamID, u32le(d.streamID))
	}
	for _, e := range d.extra {
		entry(e.typ, e.data)
	}
	entry(hdrEndOfHeader, []byte{0x0d, 0x0a, 0x0d, 0x0a})
	raw := hdr.Bytes()

	var k kdf = &aesKDF{seed: testTransformSeed, rounds: d.rounds}
	if v4 {
		var err error
		k, err = parseKDFParameters(d.kdfParams)
		require.NoError(t, err)
	}
	composite, err := compositeKey(d.key)
	require.NoError(t, err)
	transformed, err := k.transform(composite, defaultConfig())
	require.NoError(t, err)
	masterKey := sha256Concat(testMasterSeed, transformed)

	stream, err := newInnerStream(d.streamID, testStreamKey)
	require.NoError(t, err)
	protect := func(s string) string {
		b := []byte(s)
		stream.XORKeyStream(b, b)
		return base64.StdEncoding.EncodeToString(b)
	}
	var headerHash []byte
	if !v4 {
		sum := sha256.Sum256(raw)
		headerHash = sum[:]
	}
	doc := []byte(d.xml(protect, headerHash))

	var payload []byte
	if v4 {
		var inner bytes.Buffer
		innerEntry := func(typ uint8, data []byte) {
			inner.WriteByte(typ)
			inner.Write(u32le(uint32(len(data))))
			inner.Write(data)
		}
		innerEntry(innerRandomStream, u32le(d.streamID))
		innerEntry(innerRandomKey, testStreamKey)
		innerEntry(innerBinary, append([]byte{innerBinaryProtect}, testAttachment...))
		innerEntry(innerEndOfHeader, nil)
		inner.Write(doc)
		payload = inner.Bytes()
	} else {
		payload = doc
	}
	if d.compression == compressionGzip {
		payload = gzipBytes(t, payload)
	}

	out := bytes.NewBuffer(append([]byte(nil), raw...))
	b := built{headerLen: len(raw)}
	if v4 {
		ct := encryptPayload(t, d.cipherID, masterKey, iv, payload)
		sum := sha256.Sum256(raw)
		base := hmacBaseKey(testMasterSeed, transformed)
		out.Write(sum[:])
		out.Write(headerHMAC(base, raw))

		index := uint64(0)
		for len(ct) > 0 {
			n := min(d.blockSize, len(ct))
			b.blockOffsets = append(b.blockOffsets, out.Len())
			writeHMACBlock(out, base, index, ct[:n])
			ct = ct[n:]
			index++
		}
		b.blockOffsets = append(b.blockOffsets, out.Len())
		writeHMACBlock(out, base, index, nil)
	} else {
		pt := append(append([]byte(nil), testStartBytes...), hashedBlocks(payload, d.blockSize)...)
		out.Write(encryptPayload(t, d.cipherID, masterKey, iv, pt))
	}
	b.data = out.Bytes()
	return b
}

func writeHMACBlock(w *bytes.Buffer, base []byte, index uint64, data []byte) {
	w.Write(blockHMAC(base, index, data))
	w.Write(u32le(uint32(len(data))))
	w.Write(data)
}

func hashedBlocks(data []byte, size int) []byte {
	var out bytes.Buffer
	index := uint32(0)
	for len(data) > 0 {
		n := min(size, len(data))
		sum := sha256.Sum256(data[:n])
		out.Write(u32le(index))
		out.Write(sum[:])
		out.Write(u32le(uint32(n)))
		out.Write(data[:n])
		data = data[n:]
		index++
	}
	out.Write(u32le(index))
	out.Write(make([]byte, 32))
	out.Write(u32le(0))
	return out.Bytes()
}

func gzipBytes(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func pkcs7Pad(src []byte, blockSize int) []byte {
	padding := blockSize - len(src)%blockSize
	return append(append([]byte(nil), src...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func encryptPayload(t testing.TB, id [16]byte, key, iv, data []byte) []byte {
	t.Helper()
	var block cipher.Block
	var err error
	switch id {
	case cipherAES256:
		block, err = aes.NewCipher(key)
	case cipherTwofish:
		block, err = newTwofish(key)
	case cipherChaCha20:
		c, err := chacha20.NewUnauthenticatedCipher(key, iv)
		require.NoError(t, err)
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out
	default:
		t.Fatalf("unknown cipher %x", id)
	}
	require.NoError(t, err)
	padded := pkcs7Pad(data, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

// sampleXML is a small database with protected values in the root entry,
// its history and a nested group.
func sampleXML(protect func(string) string, headerHash []byte) string {
	uuid := base64.StdEncoding.EncodeToString(testUUID)
	hh := ""
	if headerHash != nil {
		hh = "<HeaderHash>" + base64.StdEncoding.EncodeToString(headerHash) + "</HeaderHash>"
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<KeePassFile>
	<Meta>
		<Generator>kdbx-test</Generator>
		%s
		<DatabaseName>Test Database</DatabaseName>
		<DatabaseDescription>fixture</DatabaseDescription>
		<MemoryProtection><ProtectPassword>True</ProtectPassword></MemoryProtection>
	</Meta>
	<Root>
		<Group>
			<UUID>%s</UUID>
			<Name>Root</Name>
			<Notes>top level</Notes>
			<Entry>
				<UUID>%s</UUID>
				<Times><CreationTime>2024-01-01T00:00:00Z</CreationTime></Times>
				<String><Key>Title</Key><Value>Example</Value></String>
				<String><Key>UserName</Key><Value>alice</Value></String>
				<String><Key>Password</Key><Value Protected="True">%s</Value></String>
				<Binary><Key>notes.txt</Key><Value Ref="0" /></Binary>
				<History>
					<Entry>
						<UUID>%s</UUID>
						<String><Key>Title</Key><Value>Example</Value></String>
						<String><Key>Password</Key><Value Protected="True">%s</Value></String>
					</Entry>
				</History>
			</Entry>
			<Group>
				<UUID>%s</UUID>
				<Name>Sub</Name>
				<Entry>
					<UUID>%s</UUID>
					<String><Key>Title</Key><Value>Nested</Value></String>
					<String><Key>Password</Key><Value Protected="True">%s</Value></String>
				</Entry>
			</Group>
		</Group>
		<DeletedObjects />
	</Root>
</KeePassFile>`,
		hh, uuid, uuid,
		protect("hunter2"),
		uuid,
		protect("old-password"),
		uuid, uuid,
		protect("ünïcødé ✓"),
	)
}
