package config

import (
	"errors"
	"strings"
)

// Command is a shell command line that is resolved when it is needed rather
// than when it is configured. The zero value is an empty literal.
type Command struct {
	literal string
	parts   []string
	derive  func() (string, error)
}

// Literal returns a Command that evaluates to s.
func Literal(s string) Command {
	return Command{literal: s}
}

// Derived returns a Command that calls fn each time it is evaluated.
func Derived(fn func() (string, error)) Command {
	return Command{derive: fn}
}

// Args returns a Command that evaluates to parts joined by single spaces.
func Args(parts ...string) Command {
	return Command{parts: append([]string(nil), parts...)}
}

// IsDerived reports whether c is resolved by a producer function.
func (c Command) IsDerived() bool {
	return c.derive != nil
}

// Evaluate resolves c to a command line.
func (c Command) Evaluate() (string, error) {
	switch {
	case c.derive != nil:
		return c.derive()
	case c.parts != nil:
		return strings.Join(c.parts, " "), nil
	default:
		return c.literal, nil
	}
}

// String returns the literal form, or a placeholder for derived commands.
func (c Command) String() string {
	if c.derive != nil {
		return "<derived>"
	}
	s, _ := c.Evaluate()
	return s
}

// MarshalText encodes literal and argument commands. Derived commands encode
// as an empty string since the producer cannot be serialised.
func (c Command) MarshalText() ([]byte, error) {
	if c.derive != nil {
		return []byte{}, nil
	}
	s, _ := c.Evaluate()
	return []byte(s), nil
}

// UnmarshalText decodes a command read from a config file as a literal.
func (c *Command) UnmarshalText(text []byte) error {
	if c == nil {
		return errors.New("config: UnmarshalText on nil *Command")
	}
	*c = Literal(string(text))
	return nil
}
