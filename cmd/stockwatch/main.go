// Command stockwatch checks the rotating fruit stock once, logs every
// non-common sighting and alerts on rare or targeted fruits.
//
// Usage:
//
//	stockwatch run                       # one check (the default command)
//	stockwatch history --limit 50        # sighting report from the store
//	stockwatch config                    # effective configuration, secrets masked
//
// Exit status of run: 0 succeeded, 2 render failed, 3 extraction failed,
// 1 on setup errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitError carries a run outcome that is already logged.
type exitError struct {
	code    int
	outcome string
}

func (e *exitError) Error() string { return "run " + e.outcome }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "stockwatch:", err)
	return 1
}
