package kdbx

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/twofish"
)

var (
	errNotBlockAligned = errors.New("ciphertext is not a multiple of the block size")
	errEmptyPadded     = errors.New("padded plaintext is empty")

	errPaddingOverlapsStart = errors.New("PKCS#7 padding overlaps the stream start bytes")
)

// outerCipher decrypts the payload. decrypt does not remove padding; padded
// ciphers must have their output passed through pkcs7Unpad.
type outerCipher struct {
	name      string
	blockSize int
	decrypt   func(key, iv, data []byte) ([]byte, error)
}

func (c outerCipher) padded() bool {
	return c.blockSize > 0
}

var outerCiphers = map[[16]byte]outerCipher{
	cipherAES256:   {name: "AES-256", blockSize: aes.BlockSize, decrypt: cbcDecrypter(aes.NewCipher)},
	cipherTwofish:  {name: "Twofish", blockSize: twofish.BlockSize, decrypt: cbcDecrypter(newTwofish)},
	cipherChaCha20: {name: "ChaCha20", decrypt: chacha20Decrypt},
}

func newTwofish(key []byte) (cipher.Block, error) {
	c, err := twofish.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// cbcDecrypter returns a CBC decryption function over the given block cipher.
func cbcDecrypter(newBlock func(key []byte) (cipher.Block, error)) func(key, iv, data []byte) ([]byte, error) {
	return func(key, iv, data []byte) ([]byte, error) {
		block, err := newBlock(key)
		if err != nil {
			return nil, NewCryptoError(CryptoInvalidKeyLength, err)
		}
		if len(iv) != block.BlockSize() {
			return nil, NewCryptoError(CryptoInvalidKeyIVLength,
				fmt.Errorf("iv length %d, want %d", len(iv), block.BlockSize()))
		}
		if len(data)%block.BlockSize() != 0 {
			return nil, NewCryptoError(CryptoBlockMode, errNotBlockAligned)
		}
		out := make([]byte, len(data))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
		return out, nil
	}
}

func chacha20Decrypt(key, iv, data []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return nil, NewCryptoError(CryptoInvalidKeyNonceLength, err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// decryptPayload decrypts data with the cipher selected by id and removes
// padding where the cipher uses it.
func decryptPayload(id [16]byte, key, iv, data []byte) ([]byte, error) {
	oc, ok := outerCiphers[id]
	if !ok {
		return nil, NewInvalidOuterCipherID(id[:])
	}
	out, err := oc.decrypt(key, iv, data)
	if err != nil {
		return nil, err
	}
	if oc.padded() {
		return pkcs7Unpad(out, oc.blockSize)
	}
	return out, nil
}

// pkcs7Unpad removes PKCS#7 padding. It runs only after the payload has
// been authenticated by the header HMAC or stream start bytes.
func pkcs7Unpad(src []byte, blockSize int) ([]byte, error) {
	length := len(src)
	if length == 0 {
		return nil, NewCryptoError(CryptoBlockMode, errEmptyPadded)
	}
	if length%blockSize != 0 {
		return nil, NewCryptoError(CryptoBlockMode, errNotBlockAligned)
	}

	padding := int(src[length-1])
	if padding == 0 || padding > blockSize {
		return nil, NewCryptoError(CryptoBlockMode,
			fmt.Errorf("invalid PKCS#7 padding byte value %d", padding))
	}
	for i := length - padding; i < length; i++ {
		if src[i] != byte(padding) {
			return nil, NewCryptoError(CryptoBlockMode,
				fmt.Errorf("malformed PKCS#7 padding at byte %d", i))
		}
	}
	return src[:length-padding], nil
}
