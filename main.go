// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/comet-monkey/cmd"
)

// main lets `go run .` work from the repository root. The installable binary
// lives in cmd/comet.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
	stop()
}
