// Command spinta inspects backends and maintains a tabular manifest of
// their structure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Register connectors via init()
	_ "github.com/04d4/spinta/internal/connector/mongo"
	_ "github.com/04d4/spinta/internal/connector/sas"
	_ "github.com/04d4/spinta/internal/connector/sqldb"

	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/typemap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{registry: endpoint.DefaultRegistry(), types: typemap.Default()}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
