package kdbx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

// RFC 9106 section 5 test vectors.
func TestArgon2Key_RFC9106(t *testing.T) {
	password := bytes.Repeat([]byte{0x01}, 32)
	salt := bytes.Repeat([]byte{0x02}, 16)
	secret := bytes.Repeat([]byte{0x03}, 8)
	data := bytes.Repeat([]byte{0x04}, 12)

	tests := []struct {
		name string
		mode int
		want string
	}{
		{"argon2d", argon2ModeD, "512b391b6f1162975371d30919734294f868e3be3984f3c1a13a4db9fabe4acb"},
		{"argon2id", argon2ModeID, "0d640df58d78766c08c037a34a8b53c9d01ef0452d75b65eb52520e96b01e659"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argon2Key(tt.mode, argon2Version13, password, salt, secret, data, 3, 32, 4, 32)
			require.Equal(t, tt.want, hex.EncodeToString(got))
		})
	}
}

func TestArgon2Key_MatchesXCrypto(t *testing.T) {
	password := []byte("password")
	salt := seq(0, 16)
	for _, p := range []struct {
		time, memory uint32
		threads      uint8
		keyLen       uint32
	}{
		{1, 64, 1, 32},
		{3, 64, 1, 32},
		{2, 100, 4, 32},
		{1, 8, 2, 16},
		{2, 256, 3, 100},
	} {
		t.Run(fmt.Sprintf("t=%d,m=%d,p=%d,len=%d", p.time, p.memory, p.threads, p.keyLen), func(t *testing.T) {
			want := argon2.IDKey(password, salt, p.time, p.memory, p.threads, p.keyLen)
			got := argon2Key(argon2ModeID, argon2Version13, password, salt, nil, nil, p.time, p.memory, p.threads, p.keyLen)
			require.Equal(t, want, got)
		})
	}
}

func TestArgon2Key_VersionMatters(t *testing.T) {
	password, salt := []byte("password"), seq(0, 16)
	v10 := argon2Key(argon2ModeD, argon2Version10, password, salt, nil, nil, 2, 64, 1, 32)
	v13 := argon2Key(argon2ModeD, argon2Version13, password, salt, nil, nil, 2, 64, 1, 32)
	require.Len(t, v10, 32)
	require.NotEqual(t, v10, v13)
	require.Equal(t, v10, argon2Key(argon2ModeD, argon2Version10, password, salt, nil, nil, 2, 64, 1, 32))
}
