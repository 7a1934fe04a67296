package kdbx

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"io"
	"strings"
	"sync"
)

// KeyComponent is one part of the composite key that opens a database.
// Implement this interface to supply key material from other sources,
// such as a hardware token or a secrets manager.
type KeyComponent interface {
	// KeyHash returns the 32-byte hash this component contributes.
	KeyHash() ([]byte, error)
}

// Password is a master password key component.
type Password string

// KeyHash implements KeyComponent.
func (p Password) KeyHash() ([]byte, error) {
	sum := sha256.Sum256([]byte(p))
	return sum[:], nil
}

// KeyFile is a key file component read from r when the database is first
// opened. The contents are kept, so the same KeyFile (or WithKeyFile option)
// can open any number of databases. XML key files (versions 1.0 and 2.0),
// raw 32-byte files and 64-character hex files are decoded; any other file
// contributes its SHA-256.
type KeyFile struct {
	r    io.Reader
	once sync.Once
	data []byte
	err  error
}

// NewKeyFile returns a key file component that reads from r.
func NewKeyFile(r io.Reader) *KeyFile {
	return &KeyFile{r: r}
}

// KeyHash implements KeyComponent. It returns ErrInvalidKeyFile if the file
// is an XML key file that fails its own format check.
func (k *KeyFile) KeyHash() ([]byte, error) {
	k.once.Do(func() {
		k.data, k.err = io.ReadAll(k.r)
		k.r = nil
	})
	if k.err != nil {
		return nil, k.err
	}
	return parseKeyFile(k.data)
}

// compositeKey hashes the concatenated component hashes.
func compositeKey(components []KeyComponent) ([]byte, error) {
	h := sha256.New()
	for _, c := range components {
		kh, err := c.KeyHash()
		if err != nil {
			return nil, err
		}
		h.Write(kh)
	}
	return h.Sum(nil), nil
}

type xmlKeyFile struct {
	XMLName xml.Name `xml:"KeyFile"`
	Meta    struct {
		Version string `xml:"Version"`
	} `xml:"Meta"`
	Key struct {
		Data struct {
			Hash  string `xml:"Hash,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"Key"`
}

func parseKeyFile(data []byte) ([]byte, error) {
	if looksLikeXMLKeyFile(data) {
		return parseXMLKeyFile(data)
	}
	switch len(data) {
	case 32:
		return cloneBytes(data), nil
	case 64:
		if key, err := hex.DecodeString(string(data)); err == nil {
			return key, nil
		}
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func looksLikeXMLKeyFile(data []byte) bool {
	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<KeyFile"))
}

func parseXMLKeyFile(data []byte) ([]byte, error) {
	var kf xmlKeyFile
	if err := xml.Unmarshal(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &kf); err != nil {
		return nil, ErrInvalidKeyFile
	}

	value := strings.Join(strings.Fields(kf.Key.Data.Value), "")
	switch strings.TrimSpace(kf.Meta.Version) {
	case "1.0", "1.00":
		key, err := base64.StdEncoding.DecodeString(value)
		if err != nil || len(key) != 32 {
			return nil, ErrInvalidKeyFile
		}
		return key, nil
	case "2.0":
		key, err := hex.DecodeString(value)
		if err != nil || len(key) != 32 {
			return nil, ErrInvalidKeyFile
		}
		sum := sha256.Sum256(key)
		if !strings.EqualFold(kf.Key.Data.Hash, hex.EncodeToString(sum[:4])) {
			return nil, ErrInvalidKeyFile
		}
		return key, nil
	}
	return nil, ErrInvalidKeyFile
}
