package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/schema"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/mpetrunic/ChainGuardian/rpc/transport/tcp"
	"github.com/mpetrunic/ChainGuardian/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "cgdb"
)

var Logger = logger.GetLogger("cli")

// DefaultEndpoint is the socket the server listens on if no endpoint is configured
var DefaultEndpoint = filepath.Join(os.TempDir(), "chainguardian", "db.sock")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return strings.Join(lines, "\n")
}

// InitConfig loads the env files and lets viper read CGDB_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, DefaultEndpoint, WrapString("The address of the database server (socket path for unix, host:port for tcp)"))

	key = "stream-window"
	cmd.PersistentFlags().Int(key, 64, WrapString("How many stream events the server may send before it waits for the client"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections to the server"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry a request that could not be sent"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds, negative keeps the OS default (tcp only)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		StreamWindow:  viper.GetInt("stream-window"),
		Transport: common.TransportConfig{
			Endpoints:              strings.Split(viper.GetString("endpoint"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			RetryCount:             viper.GetInt("transport-retries"),
			WriteBufferSize:        viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:         viper.GetInt("transport-read-buffer") * 1024,
			TCPNoDelay:             viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec:        viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:           viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	name := viper.GetString("serializer")
	s, ok := serializer.FromName(name)
	if !ok {
		return nil, fmt.Errorf("invalid serializer %s", name)
	}
	return s, nil
}

// GetTransport creates a client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport(bufferSize, workersPerConn int) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(bufferSize, workersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(bufferSize, workersPerConn), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Keys and Filters
// --------------------------------------------------------------------------

// SetupKeyFlags adds the --bucket flag and the range flags to a command
func SetupKeyFlags(cmd *cobra.Command) {
	key := "bucket"
	cmd.PersistentFlags().String(key, "", WrapString("Bucket of the keys (accounts, beaconNodes, validators, networkLogs, validatorLogs). Without a bucket keys are used as given"))

	cmd.PersistentFlags().String("gt", "", WrapString("Only keys greater than this key"))
	cmd.PersistentFlags().String("gte", "", WrapString("Only keys greater than or equal to this key"))
	cmd.PersistentFlags().String("lt", "", WrapString("Only keys less than this key"))
	cmd.PersistentFlags().String("lte", "", WrapString("Only keys less than or equal to this key"))
	cmd.PersistentFlags().Bool("reverse", false, WrapString("Iterate from the end of the range"))
	cmd.PersistentFlags().Int("limit", 0, WrapString("Maximum number of results (0 = unlimited)"))
}

// GetBucket returns the configured bucket, ok is false if no bucket is set
func GetBucket() (bucket schema.Bucket, ok bool, err error) {
	name := viper.GetString("bucket")
	if name == "" {
		return 0, false, nil
	}
	bucket, err = schema.ParseBucket(name)
	if err != nil {
		return 0, false, err
	}
	return bucket, true, nil
}

// ComposeKey turns a key given on the command line into a storage key
func ComposeKey(key string) ([]byte, error) {
	bucket, ok, err := GetBucket()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte(key), nil
	}
	return schema.ComposeKey(bucket, key), nil
}

// FormatKey renders a storage key, keys outside the schema are printed as is when no bucket is set
func FormatKey(key []byte) string {
	if _, ok, _ := GetBucket(); !ok {
		return string(key)
	}
	return schema.FormatKey(key)
}

// GetFilter builds the range of a listing command.
// With a bucket the bounds are ids inside the bucket and an unset side is bounded by the bucket.
func GetFilter() (*db.FilterOptions, error) {
	bucket, hasBucket, err := GetBucket()
	if err != nil {
		return nil, err
	}

	bound := func(name string) []byte {
		v := viper.GetString(name)
		if v == "" {
			return nil
		}
		if hasBucket {
			return schema.ComposeKey(bucket, v)
		}
		return []byte(v)
	}

	filter := &db.FilterOptions{
		Gt:      bound("gt"),
		Gte:     bound("gte"),
		Lt:      bound("lt"),
		Lte:     bound("lte"),
		Reverse: viper.GetBool("reverse"),
		Limit:   viper.GetInt("limit"),
	}

	if hasBucket {
		all := schema.BucketFilter(bucket)
		if filter.Gt == nil && filter.Gte == nil {
			filter.Gte = all.Gte
		}
		if filter.Lt == nil && filter.Lte == nil {
			filter.Lt = all.Lt
		}
	}
	return filter, nil
}
