package kdbx_test

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ai8future/kdbx"
)

func ExampleOpen() {
	_, err := kdbx.Open(strings.NewReader("definitely not a database"), kdbx.WithPassword("hunter2"))

	var e *kdbx.Error
	if errors.As(err, &e) {
		switch e.Kind() {
		case kdbx.KindIncorrectKey:
			fmt.Println("wrong password")
		case kdbx.KindDatabaseIntegrity:
			fmt.Println("corrupted:", e.Integrity().Kind())
		case kdbx.KindIO, kdbx.KindInvalidKeyFile:
			fmt.Println(e)
		}
	}
	fmt.Println(errors.Is(err, kdbx.ErrInvalidIdentifier))
	// Output:
	// corrupted: invalid identifier
	// true
}

func ExampleCauses() {
	err := kdbx.FromCrypto(kdbx.NewCryptoError(kdbx.CryptoArgon2, errors.New("out of memory")))

	fmt.Println(err)
	for _, cause := range kdbx.Causes(err) {
		fmt.Println("caused by:", cause)
	}
	// Output:
	// kdbx: database integrity error: crypto error: argon2 key derivation failed: out of memory
	// caused by: crypto error: argon2 key derivation failed: out of memory
	// caused by: out of memory
}

func ExampleLift() {
	stageErr := fmt.Errorf("reading payload: %w", kdbx.NewBlockHashMismatch(3))

	err := kdbx.Lift(stageErr)
	fmt.Println(err.Kind())
	fmt.Println(err)
	// Output:
	// database integrity error
	// kdbx: database integrity error: hash mismatch in block 3
}

func ExampleNewInvalidVersion() {
	err := kdbx.FromIntegrity(kdbx.NewInvalidVersion(4, 2, 0))
	fmt.Println(err)
	// Output: kdbx: database integrity error: unsupported KDBX version (required 4, file version 2.0)
}
