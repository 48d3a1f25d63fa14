package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

// IsTerminal reporta si fd es una terminal interactiva.
func IsTerminal(fd int) bool { return term.IsTerminal(fd) }

// PromptPassword pide el password dos veces sin eco en la terminal fd.
func PromptPassword(out io.Writer, fd int) (string, error) {
	return promptPassword(out, fd, term.ReadPassword)
}

func promptPassword(out io.Writer, fd int, read func(fd int) ([]byte, error)) (string, error) {
	fmt.Fprint(out, "Password: ")
	pwd, err := read(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Confirm Password: ")
	confirm, err := read(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if string(pwd) != string(confirm) {
		return "", ErrPasswordMismatch
	}
	return string(pwd), nil
}
