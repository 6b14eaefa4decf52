// Command proxy runs the distributed storage proxy's control plane:
// the chunk manager, placement coordinator, background workers, and the
// public facade described by spec.md. The client and agent wire loops
// themselves are external collaborators (spec §1) - this binary wires
// the package codecs (wire, agentproto) to net.Listeners, but the frame
// dispatch is a thin adapter over the already-specified pieces.
//
// Grounded on the teacher's cmd/uplod/main.go for the cobra root command
// plus version/start subcommand shape and exit-code convention.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexoedge-go/proxy/build"
)

// Exit codes (spec §6: "Proxy returns 0 on clean shutdown, 1 on fatal
// configuration or bind error").
const (
	exitCodeClean = 0
	exitCodeFatal = 1
)

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeFatal)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("nexoedge-proxy v" + build.Version)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "nexoedge-proxy v" + build.Version,
		Long:  "nexoedge-proxy v" + build.Version + " - distributed storage proxy control plane",
		Run:   startCmd,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   versionCmd,
	})

	root.Flags().StringVarP(&configPath, "config", "c", build.ConfigPath(), "path to the proxy configuration file")

	if err := root.Execute(); err != nil {
		die(err)
	}
}
