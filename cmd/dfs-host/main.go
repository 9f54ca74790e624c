// Command dfs-host starts one cluster member: dfs-host <host-id> [flags].
// There is a single root command rather than a subcommand tree, since
// there is exactly one thing this binary does.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dfscluster/dfs-host/dfshost"
	"github.com/dfscluster/dfs-host/internal/dlog"
)

var (
	flagPeers    int
	flagBindAddr string
	flagRoot     string
	flagVerbose  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dfs-host <host-id>",
	Short: "Run one member of a dfs-host cluster",
	Long: `dfs-host starts a single host daemon that exports a local directory
and federates with the other hosts named by --peers into one distributed
namespace, serving clients over TCP.`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	addFlags(rootCmd.Flags())
}

func addFlags(flags *pflag.FlagSet) {
	flags.IntVar(&flagPeers, "peers", 1, "total number of hosts in the cluster (ids 0..peers-1)")
	flags.StringVar(&flagBindAddr, "bind", "127.0.0.1", "address to bind peer and client listeners on")
	flags.StringVar(&flagRoot, "root", "", "exported root directory (defaults to the current directory)")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		dlog.SetDebug()
	}

	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("dfs-host: invalid host id %q: %w", args[0], err)
	}

	root := flagRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("dfs-host: resolve working directory: %w", err)
		}
		root = wd
	}

	if int(id) >= flagPeers {
		return fmt.Errorf("dfs-host: host id %d is not less than --peers %d", id, flagPeers)
	}

	h := dfshost.New(dfshost.Config{
		ID:       uint32(id),
		N:        uint32(flagPeers),
		Root:     root,
		BindAddr: flagBindAddr,
	})
	return h.Run()
}
