package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt differs.
var ErrMismatch = errors.New("passphrases do not match")

// Source lazily resolves the owner keystore passphrase from an environment
// variable or by prompting the operator. The value is cached after the first
// successful retrieval.
type Source struct {
	envVar  string
	confirm bool
	prompt  io.Writer
	fd      int

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), prompt: os.Stderr, fd: int(os.Stdin.Fd())}
}

// WithConfirm makes interactive retrieval ask twice. Used when a new keystore
// is being sealed.
func (s *Source) WithConfirm() *Source {
	s.confirm = true
	return s
}

func (s *Source) read(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := term.ReadPassword(s.fd)
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}

// Get returns the cached passphrase or resolves it if this is the first call.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !term.IsTerminal(s.fd) {
			if s.envVar != "" {
				s.err = fmt.Errorf("owner keystore passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("owner keystore passphrase required and no terminal available")
			}
			return
		}

		value, err := s.read("Enter owner keystore passphrase: ")
		if err != nil {
			s.err = err
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = errors.New("owner keystore passphrase cannot be empty")
			return
		}
		if s.confirm {
			again, err := s.read("Repeat passphrase: ")
			if err != nil {
				s.err = err
				return
			}
			if again != value {
				s.err = ErrMismatch
				return
			}
		}
		s.value = value
	})

	return s.value, s.err
}
