// momoctl runs the Momo media client from a YAML profile.
//
// Usage:
//
//	momoctl args --profile p2p.yaml
//	momoctl validate --profile sora.yaml
//	momoctl run --profile sora.yaml --wait-connection 10s --stats type=codec,mimeType=video/H264
//	momoctl soak --profile sora.yaml --duration 1h --interval 10s
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
