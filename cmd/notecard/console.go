package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries an exit code without hiding the cause from errors.As.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

var _ cli.ExitCoder = (*exitError)(nil)

func failure(err error) error {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return err
	}
	return &exitError{err: err, code: exitFailure}
}

func usagef(format string, args ...any) error {
	return &exitError{err: fmt.Errorf(format, args...), code: exitUsage}
}

// report prints err and returns the process exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	code := exitFailure
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", red("ERROR"), err)
	if h := hint(err); h != "" {
		_, _ = fmt.Fprintf(w, "%s: %s\n", yellow("HINT"), h)
	}
	return code
}

func hint(err error) string {
	switch {
	case errors.Is(err, notecard.ErrDFUInProgress):
		return "a firmware update is in progress, retry when it completes"
	case errors.Is(err, notecard.ErrFileStorageFull):
		return "device storage is full, sync or delete notes"
	case errors.Is(err, notecard.ErrTimeout):
		return "check the port, baud rate and that the Notecard is powered"
	}
	return ""
}
