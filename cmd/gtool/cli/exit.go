// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// UsageExitCode is the exit status for a malformed invocation.
const UsageExitCode = 2

// UsageError reports a mistake in how the command was invoked: an
// unknown command or flag, or the wrong number of arguments. It
// satisfies process.ExitCoder.
type UsageError struct {
	Message string
}

// Usagef formats a UsageError.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

func (e *UsageError) Error() string { return e.Message }

// ExitCode returns UsageExitCode.
func (e *UsageError) ExitCode() int { return UsageExitCode }

// ExactArgs returns a UsageError unless args has n elements. names
// label the expected arguments in the message.
func ExactArgs(args []string, names ...string) error {
	if len(args) == len(names) {
		return nil
	}
	if len(args) < len(names) {
		return Usagef("missing argument <%s>", names[len(args)])
	}
	return Usagef("unexpected argument %q", args[len(names)])
}
