package db

import (
	"context"
	"time"

	"github.com/mpetrunic/ChainGuardian/cmd/util"
	"github.com/mpetrunic/ChainGuardian/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore *client.RPCStore

	// DatabaseCommands represents the db command group
	DatabaseCommands = &cobra.Command{
		Use:                "db",
		Short:              "Perform operations on a running database server",
		PersistentPreRunE:  setupDBClient,
		PersistentPostRunE: closeDBClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags and the key flags to the db command
	util.SetupRPCClientFlags(DatabaseCommands)
	util.SetupKeyFlags(DatabaseCommands)

	// Add subcommands
	DatabaseCommands.AddCommand(getCmd)
	DatabaseCommands.AddCommand(hasCmd)
	DatabaseCommands.AddCommand(putCmd)
	DatabaseCommands.AddCommand(delCmd)
	DatabaseCommands.AddCommand(batchPutCmd)
	DatabaseCommands.AddCommand(keysCmd)
	DatabaseCommands.AddCommand(valuesCmd)
	DatabaseCommands.AddCommand(entriesCmd)
	DatabaseCommands.AddCommand(searchCmd)
	DatabaseCommands.AddCommand(streamCmd)
	DatabaseCommands.AddCommand(infoCmd)
	DatabaseCommands.AddCommand(perfTestCmd)
}

// setupDBClient connects the remote store
func setupDBClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the store client
	rpcStore, err = client.NewRPCStore(*util.GetClientConfig(), t, s)
	return err
}

func closeDBClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}

// requestContext bounds one command by the configured timeout
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(max(viper.GetInt("timeout"), 1))*time.Second)
}
