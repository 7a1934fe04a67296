package kdbx

import (
	"crypto/cipher"
	"encoding/base64"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseXML_Sample(t *testing.T) {
	protect, stream := testProtector(t)
	doc := sampleXML(protect, nil)

	db, err := parseXML([]byte(doc), stream, defaultMaxDecompressedSize)
	require.NoError(t, err)

	require.Equal(t, "kdbx-test", db.Meta.Generator)
	require.Equal(t, "Test Database", db.Meta.DatabaseName)
	require.Nil(t, db.Meta.HeaderHash)

	root := db.Root
	require.Equal(t, "Root", root.Name)
	require.Equal(t, testUUID, root.UUID)
	require.Len(t, root.Entries, 1)

	e := root.Entries[0]
	require.Equal(t, "Example", e.Title())
	require.Equal(t, "alice", e.UserName())
	require.Equal(t, "hunter2", e.Password())
	require.True(t, e.Fields[FieldPassword].Protected)
	require.False(t, e.Fields[FieldUserName].Protected)
	require.Equal(t, map[string]int{"notes.txt": 0}, e.Attachments)

	require.Len(t, e.History, 1)
	require.Equal(t, "old-password", e.History[0].Password())

	nested := db.FindEntry("Nested")
	require.NotNil(t, nested)
	require.Equal(t, "ünïcødé ✓", nested.Password())
}

// testProtector returns a protect function and a fresh decoding stream over
// the same key.
func testProtector(t *testing.T) (func(string) string, cipher.Stream) {
	t.Helper()
	enc, err := newInnerStream(innerStreamSalsa20, testStreamKey)
	require.NoError(t, err)
	dec, err := newInnerStream(innerStreamSalsa20, testStreamKey)
	require.NoError(t, err)
	protect := func(s string) string {
		b := []byte(s)
		enc.XORKeyStream(b, b)
		return base64.StdEncoding.EncodeToString(b)
	}
	return protect, dec
}

func TestParseXML_MetaBinaries(t *testing.T) {
	plain := base64.StdEncoding.EncodeToString([]byte("first"))
	packed := base64.StdEncoding.EncodeToString(gzipBytes(t, []byte("second")))
	doc := `<KeePassFile><Meta><Binaries>
		<Binary ID="1" Compressed="True">` + packed + `</Binary>
		<Binary ID="0">` + plain + `</Binary>
	</Binaries></Meta><Root><Group><Name>R</Name></Group></Root></KeePassFile>`

	db, err := parseXML([]byte(doc), nopStream{}, defaultMaxDecompressedSize)
	require.NoError(t, err)
	require.Equal(t, []Binary{{Data: []byte("first")}, {Data: []byte("second")}}, db.Binaries)
}

func TestParseXML_Errors(t *testing.T) {
	badUTF8 := base64.StdEncoding.EncodeToString([]byte{'o', 'k', 0xff, 0xfe})
	tests := []struct {
		name string
		doc  string
		kind IntegrityKind
	}{
		{"empty document", ``, XMLParsing},
		{"wrong root", `<Database/>`, XMLParsing},
		{"no root group", `<KeePassFile><Meta/></KeePassFile>`, XMLParsing},
		{"unterminated", `<KeePassFile><Root><Group>`, XMLParsing},
		{"mismatched tags", `<KeePassFile><Root></Group></KeePassFile>`, XMLParsing},
		{"bad binary ref", `<KeePassFile><Root><Group><Entry><Binary><Key>a</Key><Value Ref="x"/></Binary></Entry></Group></Root></KeePassFile>`, XMLParsing},
		{"bad uuid base64", `<KeePassFile><Root><Group><UUID>***</UUID></Group></Root></KeePassFile>`, Base64},
		{"bad protected base64", `<KeePassFile><Root><Group><Entry><String><Key>P</Key><Value Protected="True">%%%</Value></String></Entry></Group></Root></KeePassFile>`, Base64},
		{"protected not utf8", `<KeePassFile><Root><Group><Entry><String><Key>P</Key><Value Protected="True">` + badUTF8 + `</Value></String></Entry></Group></Root></KeePassFile>`, UTF8},
		{"binary ID beyond count", `<KeePassFile><Meta><Binaries><Binary ID="20000000">AA==</Binary></Binaries></Meta><Root><Group/></Root></KeePassFile>`, XMLParsing},
		{"sparse binary IDs", `<KeePassFile><Meta><Binaries><Binary ID="0">AA==</Binary><Binary ID="2">AA==</Binary></Binaries></Meta><Root><Group/></Root></KeePassFile>`, XMLParsing},
		{"duplicate binary ID", `<KeePassFile><Meta><Binaries><Binary ID="0">AA==</Binary><Binary ID="0">AA==</Binary></Binaries></Meta><Root><Group/></Root></KeePassFile>`, XMLParsing},
		{"bad compressed binary", `<KeePassFile><Meta><Binaries><Binary ID="0" Compressed="True">AAAA</Binary></Binaries></Meta></KeePassFile>`, Compression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseXML([]byte(tt.doc), nopStream{}, defaultMaxDecompressedSize)
			var die *DatabaseIntegrityError
			require.ErrorAs(t, err, &die)
			require.Equal(t, tt.kind, die.Kind())
			require.Equal(t, KindDatabaseIntegrity, Lift(err).Kind())
		})
	}
}

func TestParseXML_CausesReachDecoder(t *testing.T) {
	_, err := parseXML([]byte(`<KeePassFile><Root></Group></KeePassFile>`), nopStream{}, defaultMaxDecompressedSize)
	var syn *xml.SyntaxError
	require.ErrorAs(t, err, &syn)

	_, err = parseXML([]byte(`<KeePassFile><Root><Group>`), nopStream{}, defaultMaxDecompressedSize)
	require.Len(t, Causes(Lift(err)), 1)

	badUTF8 := base64.StdEncoding.EncodeToString([]byte{'o', 'k', 0xff})
	_, err = parseXML([]byte(`<KeePassFile><Root><Group><Entry><String><Key>P</Key><Value Protected="True">`+badUTF8+`</Value></String></Entry></Group></Root></KeePassFile>`), nopStream{}, defaultMaxDecompressedSize)
	var u *InvalidUTF8Error
	require.ErrorAs(t, err, &u)
	require.Equal(t, 2, u.Offset)
	require.Contains(t, Lift(err).Error(), "byte 2")
}

func TestInvalidUTF8Offset(t *testing.T) {
	require.Equal(t, -1, invalidUTF8Offset([]byte("héllo ✓")))
	require.Equal(t, 0, invalidUTF8Offset([]byte{0x80}))
	require.Equal(t, 3, invalidUTF8Offset([]byte{'a', 'b', 'c', 0xc3}))
}
