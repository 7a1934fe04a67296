// Command kdbxinfo opens a KeePass database and prints its group and entry
// tree. Failures are reported by kind, with the full cause chain under
// --verbose.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ai8future/kdbx"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const maxPasswordAttempts = 3

var (
	keyFilePath string
	verbose     bool
	debug       bool
	log         Logger

	rootCmd = &cobra.Command{
		Use:          "kdbxinfo <file>",
		Short:        "Print the group and entry tree of a KeePass database",
		Long:         `Opens a KDBX 3.1 or KDBX 4 database and prints its groups and entries. Passwords are never printed.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = Logger{Verbose: verbose, Debug: debug, w: cmd.ErrOrStderr()}
			log.Debugf("starting with verbose=%t, debug=%t", verbose, debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openWithRetry(args[0], cmd.InOrStdin())
			if err != nil {
				report(log, err)
				return errors.New(summary(err))
			}
			printTree(cmd.OutOrStdout(), db)
			return nil
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&keyFilePath, "keyfile", "k", "", "path to a key file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openWithRetry prompts for the password and opens path, asking again on
// ErrIncorrectKey when the password comes from a terminal.
func openWithRetry(path string, in io.Reader) (*kdbx.Database, error) {
	_, interactive := terminal(in)
	var err error
	for attempt := 1; attempt <= maxPasswordAttempts; attempt++ {
		var password string
		if password, err = readPassword(in); err != nil {
			return nil, kdbx.FromIO(err)
		}

		var db *kdbx.Database
		db, err = open(path, password)
		if err == nil {
			log.Infof("opened KDBX %d.%d database encrypted with %s", db.Major, db.Minor, db.Cipher)
			return db, nil
		}
		if !interactive || !errors.Is(err, kdbx.ErrIncorrectKey) {
			return nil, err
		}
		log.Warnf("incorrect password or key file (attempt %d of %d)", attempt, maxPasswordAttempts)
	}
	return nil, err
}

func open(path, password string) (*kdbx.Database, error) {
	opts := []kdbx.Option{kdbx.WithPassword(password)}
	if keyFilePath != "" {
		f, err := os.Open(keyFilePath)
		if err != nil {
			return nil, kdbx.FromIO(err)
		}
		defer f.Close()
		opts = append(opts, kdbx.WithKeyFile(f))
	}
	return kdbx.OpenFile(path, opts...)
}

// terminal reports whether in is an interactive terminal.
func terminal(in io.Reader) (int, bool) {
	f, ok := in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// readPassword reads the password without echo from a terminal, or as one
// line from any other input.
func readPassword(in io.Reader) (string, error) {
	if fd, ok := terminal(in); ok {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// summary is the one-line, user-facing description of an open failure.
func summary(err error) string {
	e := kdbx.Lift(err)
	switch e.Kind() {
	case kdbx.KindIO:
		return "file is inaccessible"
	case kdbx.KindDatabaseIntegrity:
		return "file appears corrupted"
	case kdbx.KindIncorrectKey:
		return "incorrect password or key file"
	case kdbx.KindInvalidKeyFile:
		return "key file is not valid"
	}
	return e.Error()
}

func report(l Logger, err error) {
	e := kdbx.Lift(err)
	l.Errorf("%s: %v", summary(e), e)
	if integrity := e.Integrity(); integrity != nil {
		l.Debugf("integrity failure: %s", integrity.Kind())
	}
	for _, cause := range kdbx.Causes(e) {
		l.Infof("caused by: %v", cause)
	}
}

func printTree(w io.Writer, db *kdbx.Database) {
	if db.Meta.DatabaseName != "" {
		fmt.Fprintln(w, color.New(color.Bold).Sprint(db.Meta.DatabaseName))
	}
	if db.Root == nil {
		return
	}
	db.Root.Walk(func(path []string, g *kdbx.Group) bool {
		indent := strings.Repeat("  ", len(path)-1)
		fmt.Fprintf(w, "%s%s/\n", indent, color.BlueString(g.Name))
		for _, e := range g.Entries {
			line := indent + "  - " + e.Title()
			if u := e.UserName(); u != "" {
				line += " (" + u + ")"
			}
			if n := len(e.Attachments); n > 0 {
				line += fmt.Sprintf(" [%d attachment(s)]", n)
			}
			fmt.Fprintln(w, line)
		}
		return true
	})
}
