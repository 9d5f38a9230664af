package serve

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cmdUtil "github.com/mpetrunic/ChainGuardian/cmd/util"
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/leveldb"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/pebble"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the database server",
		Long:    `Start the database server. The server owns the storage engine, other processes access it through the remote store. The configuration can be set via command line flags or environment variables. The format of the environment variables is CGDB_<flag> (e.g. CGDB_DB_PATH=/var/lib/chainguardian)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, cmdUtil.DefaultEndpoint, cmdUtil.WrapString("The address on which the server will listen (socket path for unix, host:port for tcp)"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, string(db.ImplLevelDB), cmdUtil.WrapString("The storage engine (leveldb, pebble)"))

	key = "db-path"
	ServeCmd.PersistentFlags().String(key, filepath.Join("data", "db"), cmdUtil.WrapString("The directory of the database files"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds (0 = none)"))

	key = "stream-window"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Default number of stream events in flight before the server waits for credit"))

	key = "stream-buffer"
	ServeCmd.PersistentFlags().Int(key, db.DefaultStreamBufferSize, cmdUtil.WrapString("Capacity of the engine side buffer of each stream"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Number of requests handled concurrently per connection"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Size of the read and write buffer of each connection (in KB)"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Close connections that sent nothing for this many seconds (0 = never)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the /metrics and /healthz http endpoint (e.g. localhost:9090), empty disables it"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-format"
	ServeCmd.PersistentFlags().String(key, "console", cmdUtil.WrapString("Format of the log output (console, json)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Engine = viper.GetString("engine")
	serveCmdConfig.DataDir = viper.GetString("db-path")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.StreamWindow = viper.GetInt("stream-window")
	serveCmdConfig.StreamBufferSize = viper.GetInt("stream-buffer")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.LogFormat = viper.GetString("log-format")
	serveCmdConfig.Transport = common.TransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		BufferSize:     viper.GetInt("buffer-size") * 1024,
		IdleTimeoutSec: viper.GetInt("idle-timeout"),
		TCPNoDelay:     true,
		TCPLingerSec:   -1,
	}

	if serveCmdConfig.StreamWindow <= 0 {
		return fmt.Errorf("stream-window must be positive, got %d", serveCmdConfig.StreamWindow)
	}
	if serveCmdConfig.DataDir == "" {
		return fmt.Errorf("db-path must not be empty")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel, serveCmdConfig.LogFormat)
}

// newEngine creates the configured storage engine
func newEngine(config *common.ServerConfig) (db.Engine, error) {
	opts := db.EngineOptions{StreamBufferSize: config.StreamBufferSize}
	switch db.Implementation(config.Engine) {
	case db.ImplLevelDB:
		return leveldb.New(config.DataDir, opts), nil
	case db.ImplPebble:
		return pebble.New(config.DataDir, opts), nil
	default:
		return nil, fmt.Errorf("invalid engine %s (expected one of: leveldb, pebble)", config.Engine)
	}
}

// run starts the server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport.BufferSize, serveCmdConfig.Transport.WorkersPerConn)
	if err != nil {
		return err
	}

	engine, err := newEngine(serveCmdConfig)
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, engine, t, s)

	serving := make(chan error, 1)
	go func() { serving <- serv.Serve() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-serving:
		// the listener failed, the engine may still be running
		if stopErr := serv.Stop(); stopErr != nil {
			cmdUtil.Logger.Errorf("failed to stop server: %v", stopErr)
		}
		return err
	case sig := <-signals:
		cmdUtil.Logger.Infof("received %s, shutting down", sig)
	}

	if err := serv.Stop(); err != nil {
		return err
	}
	return <-serving
}
