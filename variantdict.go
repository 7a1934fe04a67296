package kdbx

import (
	"encoding/binary"
)

// Variant dictionary layout:
//
//	[version:2] { [type:1][keyLen:4][key][valueLen:4][value] }* [0x00]
//
// The high byte of the version is the major version; only major 1 is known.
const (
	variantDictVersion   uint16 = 0x0100
	variantDictMajorMask uint16 = 0xFF00
)

// Variant dictionary value types.
const (
	vdEnd       uint8 = 0x00
	vdUInt32    uint8 = 0x04
	vdUInt64    uint8 = 0x05
	vdBool      uint8 = 0x08
	vdInt32     uint8 = 0x0C
	vdInt64     uint8 = 0x0D
	vdString    uint8 = 0x18
	vdByteArray uint8 = 0x42
)

type variantValue struct {
	typ  uint8
	data []byte
}

type variantDict map[string]variantValue

// parseVariantDictionary decodes the KDF parameter block. A truncated
// dictionary is reported as an invalid KdfParameters header entry.
func parseVariantDictionary(data []byte) (variantDict, error) {
	if len(data) < 2 {
		return nil, NewInvalidOuterHeaderEntry(hdrKdfParameters)
	}
	version := binary.LittleEndian.Uint16(data[0:2])
	if version&variantDictMajorMask > variantDictVersion&variantDictMajorMask {
		return nil, NewInvalidVariantDictionaryVersion(version)
	}

	d := make(variantDict)
	rest := data[2:]
	for {
		if len(rest) < 1 {
			return nil, NewInvalidOuterHeaderEntry(hdrKdfParameters)
		}
		typ := rest[0]
		rest = rest[1:]
		if typ == vdEnd {
			return d, nil
		}

		key, r, ok := readLengthPrefixed(rest)
		if !ok {
			return nil, NewInvalidOuterHeaderEntry(hdrKdfParameters)
		}
		value, r, ok := readLengthPrefixed(r)
		if !ok {
			return nil, NewInvalidOuterHeaderEntry(hdrKdfParameters)
		}
		rest = r

		if want, fixed := variantSizes[typ]; fixed {
			if len(value) != want {
				return nil, NewInvalidVariantDictionaryValueType(typ)
			}
		} else if typ != vdString && typ != vdByteArray {
			return nil, NewInvalidVariantDictionaryValueType(typ)
		}
		d[string(key)] = variantValue{typ: typ, data: value}
	}
}

var variantSizes = map[uint8]int{
	vdUInt32: 4,
	vdUInt64: 8,
	vdBool:   1,
	vdInt32:  4,
	vdInt64:  8,
}

func readLengthPrefixed(b []byte) (field, rest []byte, ok bool) {
	if len(b) < 4 {
		return nil, nil, false
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, false
	}
	return b[:n], b[n:], true
}

func (d variantDict) lookup(key string, typ uint8) ([]byte, error) {
	v, ok := d[key]
	if !ok {
		return nil, NewMissingKDFParam(key)
	}
	if v.typ != typ {
		return nil, NewMistypedKDFParam(key)
	}
	return v.data, nil
}

func (d variantDict) uint32(key string) (uint32, error) {
	b, err := d.lookup(key, vdUInt32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d variantDict) uint64(key string) (uint64, error) {
	b, err := d.lookup(key, vdUInt64)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d variantDict) bytes(key string) ([]byte, error) {
	return d.lookup(key, vdByteArray)
}

func (d variantDict) has(key string) bool {
	_, ok := d[key]
	return ok
}
