package kdbx

// Database is a decoded KDBX database.
type Database struct {
	Major  uint16 // format major version (3 or 4)
	Minor  uint16
	Cipher string // outer cipher name, e.g. "AES-256"

	Meta     Meta
	Root     *Group
	Binaries []Binary // attachments, referenced by index
}

// Meta holds database-level metadata.
type Meta struct {
	Generator           string
	DatabaseName        string
	DatabaseDescription string
	HeaderHash          []byte // KDBX 3.1 only
}

// Group is a folder of entries and subgroups.
type Group struct {
	UUID    []byte
	Name    string
	Notes   string
	Groups  []*Group
	Entries []*Entry
}

// Entry is a single record.
type Entry struct {
	UUID        []byte
	Fields      map[string]Value
	Attachments map[string]int // attachment name -> index into Database.Binaries
	History     []*Entry
}

// Value is an entry field. Protected values have already been unprotected.
type Value struct {
	Content   string
	Protected bool
}

// Binary is an attachment payload.
type Binary struct {
	Protected bool
	Data      []byte
}

// Standard entry field names.
const (
	FieldTitle    = "Title"
	FieldUserName = "UserName"
	FieldPassword = "Password"
	FieldURL      = "URL"
	FieldNotes    = "Notes"
)

// Get returns the content of the named field, or "" if absent.
func (e *Entry) Get(key string) string {
	return e.Fields[key].Content
}

// Title returns the entry title.
func (e *Entry) Title() string { return e.Get(FieldTitle) }

// UserName returns the entry user name.
func (e *Entry) UserName() string { return e.Get(FieldUserName) }

// Password returns the entry password.
func (e *Entry) Password() string { return e.Get(FieldPassword) }

// Walk calls fn for every group in the tree rooted at g, depth first,
// together with its path from the root. It stops early if fn returns false.
func (g *Group) Walk(fn func(path []string, g *Group) bool) {
	g.walk(nil, fn)
}

func (g *Group) walk(parent []string, fn func([]string, *Group) bool) bool {
	path := append(parent[:len(parent):len(parent)], g.Name)
	if !fn(path, g) {
		return false
	}
	for _, sub := range g.Groups {
		if !sub.walk(path, fn) {
			return false
		}
	}
	return true
}

// FindEntry returns the first entry, depth first, whose title matches.
func (db *Database) FindEntry(title string) *Entry {
	if db.Root == nil {
		return nil
	}
	var found *Entry
	db.Root.Walk(func(_ []string, g *Group) bool {
		for _, e := range g.Entries {
			if e.Title() == title {
				found = e
				return false
			}
		}
		return true
	})
	return found
}
