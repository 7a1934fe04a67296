package kdbx

import (
	"bytes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	errMissingRoot      = errors.New("missing KeePassFile root element")
	errMissingRootGroup = errors.New("missing Root group")
)

// InvalidUTF8Error reports a protected value that is not valid UTF-8 after
// unprotecting.
type InvalidUTF8Error struct {
	Offset int // byte offset of the first invalid sequence
}

func (e *InvalidUTF8Error) Error() string {
	return fmt.Sprintf("invalid UTF-8 sequence at byte %d", e.Offset)
}

func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// xmlParser builds the database tree from the decrypted XML document.
// Protected values must be visited in document order so the inner stream
// stays aligned.
type xmlParser struct {
	dec      *xml.Decoder
	stream   cipher.Stream
	limit    int64
	db       *Database
	binaries map[int]Binary // Meta/Binaries by ID, compacted after parsing
}

func parseXML(data []byte, stream cipher.Stream, limit int64) (*Database, error) {
	p := &xmlParser{
		dec:    xml.NewDecoder(bytes.NewReader(data)),
		stream: stream,
		limit:  limit,
		db:     &Database{},
	}
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, IntegrityFromXML(errMissingRoot)
		}
		if err != nil {
			return nil, IntegrityFromXML(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "KeePassFile" {
			return nil, IntegrityFromXML(errMissingRoot)
		}
		if err := p.children(p.keePassFile); err != nil {
			return nil, err
		}
		if p.db.Root == nil {
			return nil, IntegrityFromXML(errMissingRootGroup)
		}
		if err := p.compactBinaries(); err != nil {
			return nil, err
		}
		return p.db, nil
	}
}

func (p *xmlParser) keePassFile(se xml.StartElement) error {
	switch se.Name.Local {
	case "Meta":
		return p.children(p.meta)
	case "Root":
		return p.children(p.root)
	}
	return p.skip()
}

func (p *xmlParser) meta(se xml.StartElement) error {
	m := &p.db.Meta
	var err error
	switch se.Name.Local {
	case "Generator":
		m.Generator, err = p.text()
	case "DatabaseName":
		m.DatabaseName, err = p.text()
	case "DatabaseDescription":
		m.DatabaseDescription, err = p.text()
	case "HeaderHash":
		m.HeaderHash, err = p.base64Text()
	case "Binaries":
		err = p.children(p.metaBinary)
	default:
		err = p.skip()
	}
	return err
}

// metaBinary reads a KDBX 3.1 attachment from Meta/Binaries.
func (p *xmlParser) metaBinary(se xml.StartElement) error {
	if se.Name.Local != "Binary" {
		return p.skip()
	}
	id, err := strconv.Atoi(attr(se, "ID"))
	if err != nil || id < 0 {
		return IntegrityFromXML(fmt.Errorf("invalid binary ID %q", attr(se, "ID")))
	}
	data, err := p.base64Text()
	if err != nil {
		return err
	}
	if isTrue(attr(se, "Compressed")) {
		if data, err = gunzip(data, p.limit); err != nil {
			return err
		}
	}
	if _, dup := p.binaries[id]; dup {
		return IntegrityFromXML(fmt.Errorf("duplicate binary ID %d", id))
	}
	if p.binaries == nil {
		p.binaries = make(map[int]Binary)
	}
	p.binaries[id] = Binary{Data: data}
	return nil
}

// compactBinaries moves Meta/Binaries into db.Binaries. IDs must form the
// range 0..n-1 for n binaries, so a hostile ID cannot size the slice.
func (p *xmlParser) compactBinaries() error {
	if len(p.binaries) == 0 {
		return nil
	}
	out := make([]Binary, len(p.binaries))
	for id, b := range p.binaries {
		if id >= len(out) {
			return IntegrityFromXML(fmt.Errorf("binary ID %d out of range for %d binaries", id, len(out)))
		}
		out[id] = b
	}
	p.db.Binaries = out
	return nil
}

func (p *xmlParser) root(se xml.StartElement) error {
	if se.Name.Local != "Group" || p.db.Root != nil {
		return p.skip()
	}
	g, err := p.group()
	if err != nil {
		return err
	}
	p.db.Root = g
	return nil
}

func (p *xmlParser) group() (*Group, error) {
	g := &Group{}
	err := p.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "UUID":
			g.UUID, err = p.base64Text()
		case "Name":
			g.Name, err = p.text()
		case "Notes":
			g.Notes, err = p.text()
		case "Group":
			var sub *Group
			if sub, err = p.group(); err == nil {
				g.Groups = append(g.Groups, sub)
			}
		case "Entry":
			var e *Entry
			if e, err = p.entry(); err == nil {
				g.Entries = append(g.Entries, e)
			}
		default:
			err = p.skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (p *xmlParser) entry() (*Entry, error) {
	e := &Entry{Fields: make(map[string]Value), Attachments: make(map[string]int)}
	err := p.children(func(se xml.StartElement) error {
		switch se.Name.Local {
		case "UUID":
			var err error
			e.UUID, err = p.base64Text()
			return err
		case "String":
			return p.stringField(e)
		case "Binary":
			return p.binaryRef(e)
		case "History":
			return p.children(func(se xml.StartElement) error {
				if se.Name.Local != "Entry" {
					return p.skip()
				}
				h, err := p.entry()
				if err != nil {
					return err
				}
				e.History = append(e.History, h)
				return nil
			})
		}
		return p.skip()
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *xmlParser) stringField(e *Entry) error {
	var key string
	var val Value
	err := p.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "Key":
			key, err = p.text()
		case "Value":
			val, err = p.value(se)
		default:
			err = p.skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	e.Fields[key] = val
	return nil
}

func (p *xmlParser) binaryRef(e *Entry) error {
	var key string
	ref := -1
	err := p.children(func(se xml.StartElement) error {
		switch se.Name.Local {
		case "Key":
			var err error
			key, err = p.text()
			return err
		case "Value":
			n, err := strconv.Atoi(attr(se, "Ref"))
			if err != nil || n < 0 {
				return IntegrityFromXML(fmt.Errorf("invalid binary reference %q", attr(se, "Ref")))
			}
			ref = n
		}
		return p.skip()
	})
	if err != nil {
		return err
	}
	if ref >= 0 {
		e.Attachments[key] = ref
	}
	return nil
}

// value reads a field value, unprotecting it if it is marked Protected.
func (p *xmlParser) value(se xml.StartElement) (Value, error) {
	s, err := p.text()
	if err != nil {
		return Value{}, err
	}
	if !isTrue(attr(se, "Protected")) {
		return Value{Content: s}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Value{}, IntegrityFromBase64(err)
	}
	p.stream.XORKeyStream(raw, raw)
	if off := invalidUTF8Offset(raw); off >= 0 {
		return Value{}, IntegrityFromUTF8(&InvalidUTF8Error{Offset: off})
	}
	return Value{Content: string(raw), Protected: true}, nil
}

// children calls fn for each child element of the element just opened. fn
// must consume the child through its end tag.
func (p *xmlParser) children(fn func(xml.StartElement) error) error {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return p.tokenErr(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// text returns the character data of the element just opened.
func (p *xmlParser) text() (string, error) {
	var sb strings.Builder
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return "", p.tokenErr(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := p.skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

func (p *xmlParser) base64Text() ([]byte, error) {
	s, err := p.text()
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, IntegrityFromBase64(err)
	}
	return b, nil
}

func (p *xmlParser) skip() error {
	if err := p.dec.Skip(); err != nil {
		return p.tokenErr(err)
	}
	return nil
}

func (p *xmlParser) tokenErr(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return IntegrityFromXML(err)
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func isTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
