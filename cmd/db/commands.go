package db

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mpetrunic/ChainGuardian/cmd/util"
	libdb "github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ComposeKey(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			value, found, err := rpcStore.Get(ctx, key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", util.FormatKey(key), found, value)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ComposeKey(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			found, err := rpcStore.Has(ctx, key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", util.FormatKey(key), found)
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ComposeKey(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			if err := rpcStore.Put(ctx, key, []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]...",
		Short: "Deletes one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([][]byte, 0, len(args))
			for _, arg := range args {
				key, err := util.ComposeKey(arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			ctx, cancel := requestContext()
			defer cancel()

			var err error
			if len(keys) == 1 {
				err = rpcStore.Delete(ctx, keys[0])
			} else {
				err = rpcStore.BatchDelete(ctx, keys)
			}
			if err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	batchPutCmd = &cobra.Command{
		Use:   "batch-put [key=value]...",
		Short: "Writes several keys in one atomic batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]libdb.KeyValue, 0, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid item %q (expected key=value)", arg)
				}
				key, err := util.ComposeKey(k)
				if err != nil {
					return err
				}
				items = append(items, libdb.KeyValue{Key: key, Value: []byte(v)})
			}
			ctx, cancel := requestContext()
			defer cancel()

			results, err := rpcStore.BatchPut(ctx, items)
			if err != nil {
				return err
			}
			for i, res := range results {
				status := "ok"
				if res != nil {
					status = res.Error()
				}
				fmt.Printf("key=%s, result=%s\n", util.FormatKey(items[i].Key), status)
			}
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists the keys of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRange(func(ctx context.Context, filter *libdb.FilterOptions) error {
				keys, err := rpcStore.Keys(ctx, filter)
				for _, key := range keys {
					fmt.Println(util.FormatKey(key))
				}
				return err
			})
		},
	}
	valuesCmd = &cobra.Command{
		Use:   "values",
		Short: "Lists the values of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRange(func(ctx context.Context, filter *libdb.FilterOptions) error {
				values, err := rpcStore.Values(ctx, filter)
				for _, value := range values {
					fmt.Printf("%s\n", value)
				}
				return err
			})
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Searches the values of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRange(func(ctx context.Context, filter *libdb.FilterOptions) error {
				values, err := rpcStore.Search(ctx, filter)
				for _, value := range values {
					fmt.Printf("%s\n", value)
				}
				return err
			})
		},
	}
	entriesCmd = &cobra.Command{
		Use:   "entries",
		Short: "Lists the key value pairs of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRange(func(ctx context.Context, filter *libdb.FilterOptions) error {
				entries, err := rpcStore.Entries(ctx, filter)
				for _, entry := range entries {
					fmt.Printf("%s=%s\n", util.FormatKey(entry.Key), entry.Value)
				}
				return err
			})
		},
	}
	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: "Streams the entries of a range until it is exhausted or interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := util.GetFilter()
			if err != nil {
				return err
			}

			// the stream is not bounded by the request timeout
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			stream, err := rpcStore.EntriesStream(ctx, filter)
			if err != nil {
				return err
			}
			defer stream.Close()

			n := 0
			for {
				entry, ok := stream.Next()
				if !ok {
					break
				}
				fmt.Printf("%s=%s\n", util.FormatKey(entry.Key), entry.Value)
				n++
			}
			fmt.Printf("streamed %d entries\n", n)
			return stream.Err()
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			info, err := rpcStore.GetDBInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("engine=%s\npath=%s\nsize=%d bytes\nmetadata=%+v\n", info.DbType, info.Path, info.SizeBytes, info.Metadata)
			return nil
		},
	}
)

// listRange runs fn with the range given by the filter flags
func listRange(fn func(ctx context.Context, filter *libdb.FilterOptions) error) error {
	filter, err := util.GetFilter()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	return fn(ctx, filter)
}
