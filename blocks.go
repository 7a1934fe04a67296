package kdbx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"io"
	"math"
)

// maxBlockSize bounds a single payload block. KeePass writes 1 MiB blocks.
const maxBlockSize = 64 * 1024 * 1024

// headerHMACIndex is the block index reserved for the header HMAC key.
const headerHMACIndex uint64 = math.MaxUint64

// hmacBaseKey derives the KDBX 4 HMAC base key from the master seed and the
// transformed key.
func hmacBaseKey(masterSeed, transformed []byte) []byte {
	h := sha512.New()
	h.Write(masterSeed)
	h.Write(transformed)
	h.Write([]byte{0x01})
	return h.Sum(nil)
}

// blockHMACKey derives the HMAC key for one block index.
func blockHMACKey(base []byte, index uint64) []byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	h := sha512.New()
	h.Write(idx[:])
	h.Write(base)
	return h.Sum(nil)
}

// headerHMAC authenticates the raw outer header.
func headerHMAC(base, header []byte) []byte {
	mac := hmac.New(sha256.New, blockHMACKey(base, headerHMACIndex))
	mac.Write(header)
	return mac.Sum(nil)
}

// blockHMAC authenticates one block: HMAC over [index:8][size:4][data].
func blockHMAC(base []byte, index uint64, data []byte) []byte {
	var prefix [12]byte
	binary.LittleEndian.PutUint64(prefix[0:8], index)
	binary.LittleEndian.PutUint32(prefix[8:12], uint32(len(data)))
	mac := hmac.New(sha256.New, blockHMACKey(base, index))
	mac.Write(prefix[:])
	mac.Write(data)
	return mac.Sum(nil)
}

// readHMACBlocks reads the KDBX 4 block stream:
//
//	{ [hmac:32][size:4][data:size] }* terminated by a block of size 0
//
// and returns the concatenated, still encrypted data.
func readHMACBlocks(r io.Reader, base []byte) ([]byte, error) {
	var out bytes.Buffer
	for index := uint64(0); ; index++ {
		var hdr [36]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		size := binary.LittleEndian.Uint32(hdr[32:36])
		if size > maxBlockSize {
			return nil, NewBlockHashMismatch(index)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if !hmac.Equal(hdr[:32], blockHMAC(base, index, data)) {
			return nil, NewBlockHashMismatch(index)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		out.Write(data)
	}
}

// readHashedBlocks reads the KDBX 3.1 block stream from decrypted data:
//
//	{ [index:4][sha256:32][size:4][data:size] }* terminated by a block of size 0
//
// with an all-zero hash on the final block.
func readHashedBlocks(data []byte) ([]byte, error) {
	var out bytes.Buffer
	rest := data
	for want := uint32(0); ; want++ {
		if len(rest) < 40 {
			return nil, NewBlockHashMismatch(uint64(want))
		}
		index := binary.LittleEndian.Uint32(rest[0:4])
		hash := rest[4:36]
		size := binary.LittleEndian.Uint32(rest[36:40])
		rest = rest[40:]

		if index != want {
			return nil, NewBlockHashMismatch(uint64(want))
		}
		if size == 0 {
			if !bytes.Equal(hash, make([]byte, 32)) {
				return nil, NewBlockHashMismatch(uint64(index))
			}
			return out.Bytes(), nil
		}
		if uint64(size) > uint64(len(rest)) {
			return nil, NewBlockHashMismatch(uint64(index))
		}
		block := rest[:size]
		rest = rest[size:]
		sum := sha256.Sum256(block)
		if !bytes.Equal(hash, sum[:]) {
			return nil, NewBlockHashMismatch(uint64(index))
		}
		out.Write(block)
	}
}
