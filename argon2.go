package kdbx

import (
	"encoding/binary"
	"hash"
	"math/bits"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Argon2 as defined by RFC 9106, for the variants and inputs that
// golang.org/x/crypto/argon2 does not expose: Argon2d, version 0x10, and
// the secret key and associated data inputs. The block layout and lane
// scheduling follow x/crypto so both produce identical Argon2id output.

const (
	argon2ModeD  = 0
	argon2ModeID = 2

	argon2BlockWords = 128 // 1 KiB block of uint64
	argon2SyncPoints = 4
)

type argon2Block [argon2BlockWords]uint64

// argon2Key derives keyLen bytes. memory is in KiB. time and threads must
// be at least 1.
func argon2Key(mode int, version uint32, password, salt, secret, data []byte,
	time, memory uint32, threads uint8, keyLen uint32) []byte {
	h0 := argon2InitHash(mode, version, password, salt, secret, data, time, memory, uint32(threads), keyLen)

	lanesTotal := argon2SyncPoints * uint32(threads)
	memory = memory / lanesTotal * lanesTotal
	if memory < 2*lanesTotal {
		memory = 2 * lanesTotal
	}
	B := argon2InitBlocks(&h0, memory, uint32(threads))
	argon2Fill(B, mode, version, time, memory, uint32(threads))
	return argon2Extract(B, memory, uint32(threads), keyLen)
}

func argon2InitHash(mode int, version uint32, password, salt, secret, data []byte,
	time, memory, threads, keyLen uint32) [blake2b.Size + 8]byte {
	var h0 [blake2b.Size + 8]byte
	var params [24]byte
	b2, _ := blake2b.New512(nil)

	binary.LittleEndian.PutUint32(params[0:], threads)
	binary.LittleEndian.PutUint32(params[4:], keyLen)
	binary.LittleEndian.PutUint32(params[8:], memory)
	binary.LittleEndian.PutUint32(params[12:], time)
	binary.LittleEndian.PutUint32(params[16:], version)
	binary.LittleEndian.PutUint32(params[20:], uint32(mode))
	b2.Write(params[:])
	for _, field := range [][]byte{password, salt, secret, data} {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(field)))
		b2.Write(n[:])
		b2.Write(field)
	}
	b2.Sum(h0[:0])
	return h0
}

func argon2InitBlocks(h0 *[blake2b.Size + 8]byte, memory, threads uint32) []argon2Block {
	var buf [1024]byte
	B := make([]argon2Block, memory)
	for lane := uint32(0); lane < threads; lane++ {
		j := lane * (memory / threads)
		binary.LittleEndian.PutUint32(h0[blake2b.Size+4:], lane)
		for i := uint32(0); i < 2; i++ {
			binary.LittleEndian.PutUint32(h0[blake2b.Size:], i)
			argon2Hash(buf[:], h0[:])
			for w := range B[j+i] {
				B[j+i][w] = binary.LittleEndian.Uint64(buf[w*8:])
			}
		}
	}
	return B
}

func argon2Fill(B []argon2Block, mode int, version, time, memory, threads uint32) {
	lanes := memory / threads
	segments := lanes / argon2SyncPoints

	segment := func(n, slice, lane uint32, wg *sync.WaitGroup) {
		defer wg.Done()
		dataIndependent := mode == argon2ModeID && n == 0 && slice < argon2SyncPoints/2

		var addresses, in, zero argon2Block
		if dataIndependent {
			in[0] = uint64(n)
			in[1] = uint64(lane)
			in[2] = uint64(slice)
			in[3] = uint64(memory)
			in[4] = uint64(time)
			in[5] = uint64(mode)
		}

		index := uint32(0)
		if n == 0 && slice == 0 {
			index = 2 // first two blocks come from H0
			if dataIndependent {
				in[6]++
				argon2Compress(&addresses, &in, &zero, false)
				argon2Compress(&addresses, &addresses, &zero, false)
			}
		}

		offset := lane*lanes + slice*segments + index
		for index < segments {
			prev := offset - 1
			if index == 0 && slice == 0 {
				prev += lanes
			}
			var random uint64
			if dataIndependent {
				if index%argon2BlockWords == 0 {
					in[6]++
					argon2Compress(&addresses, &in, &zero, false)
					argon2Compress(&addresses, &addresses, &zero, false)
				}
				random = addresses[index%argon2BlockWords]
			} else {
				random = B[prev][0]
			}
			ref := argon2RefIndex(random, lanes, segments, threads, n, slice, lane, index)
			// Version 0x10 overwrites on every pass; 0x13 XORs after the first.
			argon2Compress(&B[offset], &B[prev], &B[ref], version != argon2Version10 && n > 0)
			index, offset = index+1, offset+1
		}
	}

	for n := uint32(0); n < time; n++ {
		for slice := uint32(0); slice < argon2SyncPoints; slice++ {
			var wg sync.WaitGroup
			for lane := uint32(0); lane < threads; lane++ {
				wg.Add(1)
				go segment(n, slice, lane, &wg)
			}
			wg.Wait()
		}
	}
}

func argon2RefIndex(random uint64, lanes, segments, threads, n, slice, lane, index uint32) uint32 {
	refLane := uint32(random>>32) % threads
	if n == 0 && slice == 0 {
		refLane = lane
	}
	m, s := 3*segments, ((slice+1)%argon2SyncPoints)*segments
	if lane == refLane {
		m += index
	}
	if n == 0 {
		m, s = slice*segments, 0
		if slice == 0 || lane == refLane {
			m += index
		}
	}
	if index == 0 || lane == refLane {
		m--
	}

	p := random & 0xFFFFFFFF
	p = (p * p) >> 32
	p = (p * uint64(m)) >> 32
	return refLane*lanes + uint32((uint64(s)+uint64(m)-(p+1))%uint64(lanes))
}

// argon2Compress computes G(in1, in2) into out, XORing with the previous
// contents of out when xor is set.
func argon2Compress(out, in1, in2 *argon2Block, xor bool) {
	var r, t argon2Block
	for i := range r {
		r[i] = in1[i] ^ in2[i]
	}
	t = r
	for i := 0; i < argon2BlockWords; i += 16 {
		var idx [16]int
		for j := range idx {
			idx[j] = i + j
		}
		blamkaRound(&t, idx)
	}
	for i := 0; i < 16; i += 2 {
		var idx [16]int
		for j := 0; j < 8; j++ {
			idx[2*j] = 16*j + i
			idx[2*j+1] = 16*j + i + 1
		}
		blamkaRound(&t, idx)
	}
	for i := range t {
		if xor {
			out[i] ^= r[i] ^ t[i]
		} else {
			out[i] = r[i] ^ t[i]
		}
	}
}

func blamkaRound(t *argon2Block, idx [16]int) {
	var v [16]uint64
	for i, j := range idx {
		v[i] = t[j]
	}
	blamkaG(&v, 0, 4, 8, 12)
	blamkaG(&v, 1, 5, 9, 13)
	blamkaG(&v, 2, 6, 10, 14)
	blamkaG(&v, 3, 7, 11, 15)
	blamkaG(&v, 0, 5, 10, 15)
	blamkaG(&v, 1, 6, 11, 12)
	blamkaG(&v, 2, 7, 8, 13)
	blamkaG(&v, 3, 4, 9, 14)
	for i, j := range idx {
		t[j] = v[i]
	}
}

func blamkaG(v *[16]uint64, a, b, c, d int) {
	v[a] = fBlaMka(v[a], v[b])
	v[d] = bits.RotateLeft64(v[d]^v[a], -32)
	v[c] = fBlaMka(v[c], v[d])
	v[b] = bits.RotateLeft64(v[b]^v[c], -24)
	v[a] = fBlaMka(v[a], v[b])
	v[d] = bits.RotateLeft64(v[d]^v[a], -16)
	v[c] = fBlaMka(v[c], v[d])
	v[b] = bits.RotateLeft64(v[b]^v[c], -63)
}

func fBlaMka(x, y uint64) uint64 {
	return x + y + 2*uint64(uint32(x))*uint64(uint32(y))
}

func argon2Extract(B []argon2Block, memory, threads, keyLen uint32) []byte {
	lanes := memory / threads
	final := B[memory-1]
	for lane := uint32(0); lane < threads-1; lane++ {
		for i, v := range B[lane*lanes+lanes-1] {
			final[i] ^= v
		}
	}
	var buf [1024]byte
	for i, v := range final {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	key := make([]byte, keyLen)
	argon2Hash(key, buf[:])
	return key
}

// argon2Hash is the variable-length hash H' from RFC 9106 section 3.3.
func argon2Hash(out, in []byte) {
	var b2 hash.Hash
	if n := len(out); n < blake2b.Size {
		b2, _ = blake2b.New(n, nil)
	} else {
		b2, _ = blake2b.New512(nil)
	}

	var buf [blake2b.Size]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(out)))
	b2.Write(buf[:4])
	b2.Write(in)

	if len(out) <= blake2b.Size {
		b2.Sum(out[:0])
		return
	}

	outLen := len(out)
	b2.Sum(buf[:0])
	b2.Reset()
	copy(out, buf[:32])
	out = out[32:]
	for len(out) > blake2b.Size {
		b2.Write(buf[:])
		b2.Sum(buf[:0])
		copy(out, buf[:32])
		out = out[32:]
		b2.Reset()
	}

	if outLen%blake2b.Size > 0 {
		r := ((outLen + 31) / 32) - 2
		b2, _ = blake2b.New(outLen-32*r, nil)
	}
	b2.Write(buf[:])
	b2.Sum(out[:0])
}
