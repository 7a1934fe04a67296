package kdbx

import (
	"crypto/aes"
	"crypto/sha256"
	"fmt"
	"math"

	"golang.org/x/crypto/argon2"
)

// KDF parameter keys.
const (
	kdfParamUUID        = "$UUID"
	kdfParamRounds      = "R"
	kdfParamSalt        = "S"
	kdfParamParallelism = "P"
	kdfParamMemory      = "M"
	kdfParamIterations  = "I"
	kdfParamVersion     = "V"
	kdfParamSecretKey   = "K"
	kdfParamAssocData   = "A"
)

// Argon2 versions defined by the format.
const (
	argon2Version10 uint32 = 0x10
	argon2Version13 uint32 = 0x13
)

// kdf turns the composite key into the 32-byte transformed key.
type kdf interface {
	transform(composite []byte, cfg *config) ([]byte, error)
}

// aesKDF is the AES-KDF: the composite key is encrypted with AES-256-ECB
// under seed for the given number of rounds, then hashed with SHA-256.
type aesKDF struct {
	seed   []byte
	rounds uint64
}

func (k *aesKDF) transform(composite []byte, _ *config) ([]byte, error) {
	if len(k.seed) != 32 {
		return nil, NewCryptoError(CryptoInvalidKeyLength, aes.KeySizeError(len(k.seed)))
	}
	block, err := aes.NewCipher(k.seed)
	if err != nil {
		return nil, NewCryptoError(CryptoInvalidKeyLength, err)
	}

	var buf [32]byte
	copy(buf[:], composite)
	for i := uint64(0); i < k.rounds; i++ {
		block.Encrypt(buf[0:16], buf[0:16])
		block.Encrypt(buf[16:32], buf[16:32])
	}
	sum := sha256.Sum256(buf[:])
	return sum[:], nil
}

// argon2KDF holds Argon2d or Argon2id parameters as stored in the header.
// Memory is in bytes.
type argon2KDF struct {
	id          [16]byte
	salt        []byte
	parallelism uint32
	memory      uint64
	iterations  uint64
	version     uint32
	secret      []byte
	assocData   []byte
}

func (k *argon2KDF) transform(composite []byte, cfg *config) ([]byte, error) {
	if k.parallelism == 0 || k.parallelism > math.MaxUint8 {
		return nil, NewCryptoError(CryptoArgon2,
			fmt.Errorf("argon2: parallelism %d out of range", k.parallelism))
	}
	if k.iterations == 0 || k.iterations > math.MaxUint32 {
		return nil, NewCryptoError(CryptoArgon2,
			fmt.Errorf("argon2: iterations %d out of range", k.iterations))
	}
	if k.memory > cfg.maxArgon2Memory {
		return nil, NewCryptoError(CryptoArgon2,
			fmt.Errorf("argon2: memory %d bytes exceeds limit of %d bytes", k.memory, cfg.maxArgon2Memory))
	}
	if k.memory/1024 > math.MaxUint32 {
		return nil, NewCryptoError(CryptoArgon2,
			fmt.Errorf("argon2: memory %d bytes out of range", k.memory))
	}

	memoryKiB := uint32(k.memory / 1024)
	if k.id == kdfArgon2id && k.version == argon2Version13 && len(k.secret) == 0 && len(k.assocData) == 0 {
		return argon2.IDKey(composite, k.salt, uint32(k.iterations), memoryKiB, uint8(k.parallelism), 32), nil
	}
	mode := argon2ModeID
	if k.id == kdfArgon2d {
		mode = argon2ModeD
	}
	return argon2Key(mode, k.version, composite, k.salt, k.secret, k.assocData,
		uint32(k.iterations), memoryKiB, uint8(k.parallelism), 32), nil
}

// parseKDFParameters decodes the KDBX 4 KdfParameters header entry.
func parseKDFParameters(data []byte) (kdf, error) {
	d, err := parseVariantDictionary(data)
	if err != nil {
		return nil, err
	}

	uuid, err := d.bytes(kdfParamUUID)
	if err != nil {
		return nil, err
	}
	var id [16]byte
	if len(uuid) != len(id) {
		return nil, NewInvalidKDFUUID(uuid)
	}
	copy(id[:], uuid)

	switch id {
	case kdfAES:
		rounds, err := d.uint64(kdfParamRounds)
		if err != nil {
			return nil, err
		}
		seed, err := d.bytes(kdfParamSalt)
		if err != nil {
			return nil, err
		}
		return &aesKDF{seed: seed, rounds: rounds}, nil

	case kdfArgon2d, kdfArgon2id:
		k := &argon2KDF{id: id}
		if k.salt, err = d.bytes(kdfParamSalt); err != nil {
			return nil, err
		}
		if k.parallelism, err = d.uint32(kdfParamParallelism); err != nil {
			return nil, err
		}
		if k.memory, err = d.uint64(kdfParamMemory); err != nil {
			return nil, err
		}
		if k.iterations, err = d.uint64(kdfParamIterations); err != nil {
			return nil, err
		}
		if k.version, err = d.uint32(kdfParamVersion); err != nil {
			return nil, err
		}
		if k.version != argon2Version10 && k.version != argon2Version13 {
			return nil, NewInvalidKDFVersion(k.version)
		}
		if d.has(kdfParamSecretKey) {
			if k.secret, err = d.bytes(kdfParamSecretKey); err != nil {
				return nil, err
			}
		}
		if d.has(kdfParamAssocData) {
			if k.assocData, err = d.bytes(kdfParamAssocData); err != nil {
				return nil, err
			}
		}
		return k, nil
	}
	return nil, NewInvalidKDFUUID(uuid)
}
