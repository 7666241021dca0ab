package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivlev/dicom2video/internal/apperr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode is 2 for usage problems, including argument errors raised by cobra
// before the command runs, and 1 for the other invocation errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case apperr.Is(err, apperr.Usage):
		return 2
	case apperr.KindOf(err).Invocation():
		return 1
	default:
		return 2
	}
}
