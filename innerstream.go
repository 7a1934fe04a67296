package kdbx

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

// newInnerStream returns the keystream that unprotects protected values.
// Values are unprotected in document order from one continuous stream.
func newInnerStream(id uint32, key []byte) (cipher.Stream, error) {
	switch id {
	case innerStreamNone:
		return nopStream{}, nil
	case innerStreamSalsa20:
		return newSalsa20Stream(key), nil
	case innerStreamChaCha20:
		h := sha512.Sum512(key)
		c, err := chacha20.NewUnauthenticatedCipher(h[:32], h[32:44])
		if err != nil {
			return nil, NewCryptoError(CryptoInvalidKeyNonceLength, err)
		}
		return c, nil
	}
	// ArcFour (1) was dropped by KeePass 2.x and is rejected with the
	// unknown IDs.
	return nil, NewInvalidInnerCipherID(id)
}

type nopStream struct{}

func (nopStream) XORKeyStream(dst, src []byte) { copy(dst, src) }

// salsa20Stream is a continuous Salsa20 keystream with the format's fixed
// nonce. x/crypto/salsa20 restarts the counter on every call, so blocks are
// generated here.
type salsa20Stream struct {
	key     [32]byte
	counter [16]byte // [nonce:8][block:8]
	block   uint64
	buf     [64]byte
	used    int
}

func newSalsa20Stream(key []byte) *salsa20Stream {
	s := &salsa20Stream{key: sha256.Sum256(key), used: 64}
	copy(s.counter[:8], salsa20Nonce[:])
	return s
}

func (s *salsa20Stream) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.used == len(s.buf) {
			s.refill()
		}
		dst[i] = src[i] ^ s.buf[s.used]
		s.used++
	}
}

func (s *salsa20Stream) refill() {
	var zero [64]byte
	binary.LittleEndian.PutUint64(s.counter[8:], s.block)
	salsa.XORKeyStream(s.buf[:], zero[:], &s.counter, &s.key)
	s.block++
	s.used = 0
}
