// Package shard implements the shard commands: byte range extraction and
// listing of shards stored in a gocloud.dev bucket.
package shard

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/shardstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ShardCommands is the parent of all shard commands
	ShardCommands = &cobra.Command{
		Use:               "shard",
		Short:             "Extract byte ranges from stored shards",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	}

	extractCmd = &cobra.Command{
		Use:   "extract [flags] <key> <start> <end>",
		Short: "Write the bytes [start, end) of a shard to stdout",
		Long: `Write the bytes [start, end) of the shard stored under key to stdout.
The shard is fetched from the store and sliced by the shard worker. With
--direct only the range is read from the store and no worker is started.
Bounds outside the shard are clamped; an inverted range yields no output.`,
		Args: cobra.ExactArgs(3),
		RunE: runExtract,
	}

	lsCmd = &cobra.Command{
		Use:   "ls [flags] [prefix]",
		Short: "List the shard keys below prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
)

func init() {
	key := "store"
	ShardCommands.PersistentFlags().String(key, "file://./shards", util.WrapString("URL of the shard store (e.g. file:///data/shards, mem://)"))

	key = "direct"
	extractCmd.Flags().Bool(key, false, util.WrapString("Read only the requested range from the store instead of slicing the whole shard in a worker"))

	ShardCommands.AddCommand(extractCmd)
	ShardCommands.AddCommand(lsCmd)
}

func openStore(ctx context.Context) (*shardstore.Store, error) {
	return shardstore.Open(ctx, viper.GetString("store"))
}

func runExtract(cmd *cobra.Command, args []string) error {
	start, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid start %q: %w", args[1], err)
	}
	end, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid end %q: %w", args[2], err)
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if viper.GetBool("direct") {
		out, err := store.ReadRange(ctx, args[0], start, end)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	conf, err := util.GetCoordinatorConfig()
	if err != nil {
		return err
	}

	data, err := store.ReadShard(ctx, args[0])
	if err != nil {
		return err
	}

	c, err := util.NewCoordinator(conf)
	if err != nil {
		return err
	}
	defer c.Dispose()
	defer util.PrintStats(c)

	out, err := c.DecodeShardEntry(ctx, data, start, end)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := util.SignalContext()
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
