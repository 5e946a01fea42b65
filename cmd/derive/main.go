// Command derive validates and runs derive behaviors against YAML item
// fixtures.
//
//	derive validate -c behavior.xml
//	derive run -c behavior.xml --items items.yaml --out result.yaml
//	derive replay -c behavior.xml --items items.yaml --events events.yaml --buffered
//	derive watch -c behavior.xml --items items.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
