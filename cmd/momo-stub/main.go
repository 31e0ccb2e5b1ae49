// Stand-in for the Momo media client.
//
// It accepts the client's command line and serves the same metrics
// endpoint and signaling protocols, so the controller can be exercised
// without the native build:
//
//	go build -o momo ./cmd/momo-stub
//	MOMO_EXECUTABLE=$PWD/momo go test ./pkg/momo/...
package main

import (
	"context"
	"os"

	"github.com/thesyncim/momo-e2e/internal/stub"
)

func main() {
	os.Exit(stub.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
