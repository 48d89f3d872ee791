package cli

import "errors"

// ErrUsage marks failures caused by how the command was invoked, as opposed
// to pipeline errors. Callers match it with errors.Is.
var ErrUsage = errors.New("invalid usage")

type usageError struct{ msg string }

func newUsageError(msg string) error { return usageError{msg: msg} }

func (e usageError) Error() string { return e.msg }

func (e usageError) Is(target error) bool { return target == ErrUsage }
