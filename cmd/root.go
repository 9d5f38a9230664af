package cmd

import (
	"fmt"
	"os"

	"github.com/mpetrunic/ChainGuardian/cmd/db"
	"github.com/mpetrunic/ChainGuardian/cmd/serve"
	"github.com/mpetrunic/ChainGuardian/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cgdb",
		Short: "ChainGuardian database server and client",
		Long: fmt.Sprintf(`cgdb (v%s)

The storage layer of ChainGuardian. One process owns the database files and
serves them over a local socket, every other process uses the remote store.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cgdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cgdb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(db.DatabaseCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "unix", util.WrapString("transport to use (unix, tcp)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
