package kdbx

import "io"

// defaultMaxArgon2Memory is the default ceiling on Argon2 memory (1GB).
const defaultMaxArgon2Memory = 1024 * 1024 * 1024

// Option is a functional option for configuring Open.
type Option func(*config)

// config holds open configuration.
type config struct {
	components          []KeyComponent
	maxDecompressedSize int64
	maxArgon2Memory     uint64
}

// defaultConfig returns the default configuration.
func defaultConfig() *config {
	return &config{
		maxDecompressedSize: defaultMaxDecompressedSize,
		maxArgon2Memory:     defaultMaxArgon2Memory,
	}
}

// WithPassword adds the master password to the composite key.
func WithPassword(password string) Option {
	return WithKey(Password(password))
}

// WithKeyFile adds a key file, read from r by the first Open that uses the
// option, to the composite key. The password, if any, must be added first.
func WithKeyFile(r io.Reader) Option {
	return WithKey(NewKeyFile(r))
}

// WithKey adds arbitrary key components in order.
func WithKey(components ...KeyComponent) Option {
	return func(c *config) {
		c.components = append(c.components, components...)
	}
}

// WithMaxDecompressedSize sets the ceiling on the decompressed payload and
// on each compressed attachment. Default is 256MB.
func WithMaxDecompressedSize(bytes int64) Option {
	return func(c *config) {
		c.maxDecompressedSize = bytes
	}
}

// WithMaxArgon2Memory sets the largest Argon2 memory parameter, in bytes,
// that Open will honor. Files asking for more fail with a CryptoArgon2
// error instead of exhausting memory. Default is 1GB.
func WithMaxArgon2Memory(bytes uint64) Option {
	return func(c *config) {
		c.maxArgon2Memory = bytes
	}
}
