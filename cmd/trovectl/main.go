package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trove-io/trove/pkg/collection"
	"github.com/trove-io/trove/pkg/perfmon"
	"github.com/trove-io/trove/pkg/rpc"
	"github.com/trove-io/trove/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "trovectl",
	Short:   "trovectl - Trove storage space administration",
	Long:    "trovectl creates and inspects Trove storage spaces directly on disk, and polls a running troved server's performance counters over the network.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("trovectl version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.AddCommand(mkspaceCmd)
	rootCmd.AddCommand(rmspaceCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(perfmonCmd)
}

var mkspaceCmd = &cobra.Command{
	Use:   "mkspace",
	Short: "Create a storage space, or add a collection to an existing one",
	Long: `mkspace prepares the three on-disk roots a server needs (data_space,
meta_space, config_space) and registers one collection within them, in
a new or an existing space. Without --add-coll, a collection name that
already exists is reported with a hint to pass --add-coll; with it, the
registry still refuses a name or fs_id that is already in use.

Examples:
  # Create a fresh storage space with its first collection
  trovectl mkspace --data-space /srv/trove/data --meta-space /srv/trove/meta \
    --config-space /srv/trove/config --coll-name fs-a --coll-id 9 --root-handle 1

  # Add a second collection to an existing space
  trovectl mkspace --data-space /srv/trove/data --meta-space /srv/trove/meta \
    --config-space /srv/trove/config --coll-name fs-b --coll-id 10 --root-handle 1 --add-coll`,
	RunE: runMkspace,
}

var rmspaceCmd = &cobra.Command{
	Use:   "rmspace",
	Short: "Remove a collection, or an entire storage space",
	Long: `rmspace removes the named collection from a storage space. With
--delete-storage it instead removes the data_space and meta_space roots
entirely, regardless of which collections they hold.`,
	RunE: runRmspace,
}

var lsCmd = &cobra.Command{
	Use:   "ls PATH",
	Short: "List a directory dataspace's keyval entries",
	Long: `PATH identifies a dataspace as "collection" (the collection's root
directory) or "collection:handle" (handle as a decimal integer), since
resolving a full pathname into a handle is a client-side concern this
server does not perform.`,
	Args: cobra.ExactArgs(1),
	RunE: runLs,
}

var perfmonCmd = &cobra.Command{
	Use:   "perfmon MOUNT",
	Short: "Subscribe to a running server's performance counter history",
	Long: `MOUNT is the gossip/perfmon RPC listen address of a running troved
server (e.g. 127.0.0.1:3397). perfmon polls it every --interval and
prints each new HISTORY entry, including gap placeholders if polling
falls behind the server's sample rate.`,
	Args: cobra.ExactArgs(1),
	RunE: runPerfmon,
}

func init() {
	mkspaceCmd.Flags().String("data-space", "", "Path to the data_space root (required)")
	mkspaceCmd.Flags().String("meta-space", "", "Path to the meta_space root (required)")
	mkspaceCmd.Flags().String("config-space", "", "Path to the config_space root (required)")
	mkspaceCmd.Flags().StringP("coll-name", "c", "", "Collection name (required)")
	mkspaceCmd.Flags().Uint32P("coll-id", "i", 0, "Collection fs_id (required)")
	mkspaceCmd.Flags().Uint64P("root-handle", "r", 0, "Root directory handle to create within the collection")
	mkspaceCmd.Flags().BoolP("add-coll", "a", false, "Add this collection to an already-prepared storage space, rather than creating one")
	mkspaceCmd.Flags().Uint64("handle-start", 1, "First handle of the collection's allocatable range")
	mkspaceCmd.Flags().Uint64("handle-end", 1<<32, "Last handle (inclusive) of the collection's allocatable range")
	mkspaceCmd.Flags().BoolP("verbose", "v", false, "Print the options in effect before acting")
	_ = mkspaceCmd.MarkFlagRequired("data-space")
	_ = mkspaceCmd.MarkFlagRequired("meta-space")
	_ = mkspaceCmd.MarkFlagRequired("config-space")
	_ = mkspaceCmd.MarkFlagRequired("coll-name")
	_ = mkspaceCmd.MarkFlagRequired("coll-id")

	rmspaceCmd.Flags().String("data-space", "", "Path to the data_space root (required)")
	rmspaceCmd.Flags().String("meta-space", "", "Path to the meta_space root (required)")
	rmspaceCmd.Flags().StringP("coll-name", "c", "", "Collection to remove")
	rmspaceCmd.Flags().BoolP("purge", "p", false, "Remove the collection even if it holds dataspaces beyond its root directory")
	rmspaceCmd.Flags().BoolP("delete-storage", "D", false, "Delete the entire data_space/meta_space roots instead of one collection")
	_ = rmspaceCmd.MarkFlagRequired("data-space")
	_ = rmspaceCmd.MarkFlagRequired("meta-space")

	lsCmd.Flags().String("data-space", "", "Path to the data_space root (required)")
	lsCmd.Flags().String("meta-space", "", "Path to the meta_space root (required)")
	lsCmd.Flags().Int("max-count", 64, "Maximum number of entries to print")
	_ = lsCmd.MarkFlagRequired("data-space")
	_ = lsCmd.MarkFlagRequired("meta-space")

	perfmonCmd.Flags().Duration("interval", 2*time.Second, "Polling interval")
}

func runMkspace(cmd *cobra.Command, args []string) error {
	dataSpace, _ := cmd.Flags().GetString("data-space")
	metaSpace, _ := cmd.Flags().GetString("meta-space")
	configSpace, _ := cmd.Flags().GetString("config-space")
	collName, _ := cmd.Flags().GetString("coll-name")
	collID, _ := cmd.Flags().GetUint32("coll-id")
	rootHandle, _ := cmd.Flags().GetUint64("root-handle")
	addColl, _ := cmd.Flags().GetBool("add-coll")
	handleStart, _ := cmd.Flags().GetUint64("handle-start")
	handleEnd, _ := cmd.Flags().GetUint64("handle-end")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if verbose {
		fmt.Printf("data_space   : %s\n", dataSpace)
		fmt.Printf("meta_space   : %s\n", metaSpace)
		fmt.Printf("config_space : %s\n", configSpace)
		fmt.Printf("collection   : %s (fs_id=%d)\n", collName, collID)
		fmt.Printf("root handle  : %d\n", rootHandle)
		fmt.Printf("add-coll     : %v\n", addColl)
	}

	if err := os.MkdirAll(configSpace, 0o755); err != nil {
		return fmt.Errorf("mkspace: config_space: %w", err)
	}

	reg, err := collection.Open(dataSpace, metaSpace)
	if err != nil {
		return fmt.Errorf("mkspace: %w", err)
	}
	defer reg.Close()

	if existing, lookupErr := reg.Lookup(collName); lookupErr == nil && !addColl {
		return fmt.Errorf("mkspace: collection %q already exists (id=%s); pass --add-coll to add another collection to this space", collName, existing)
	}

	rng := types.HandleRange{Start: handleStart, End: handleEnd}
	c, err := reg.Create(collName, collID, rng, types.Handle{Lo: rootHandle})
	if err != nil {
		return fmt.Errorf("mkspace: create collection: %w", err)
	}

	fmt.Printf("Storage space ready: %s\n", c.Name)
	fmt.Printf("  id          : %s\n", c.ID)
	fmt.Printf("  fs_id       : %d\n", c.FSID)
	fmt.Printf("  handle range: [%d, %d]\n", c.HandleRange.Start, c.HandleRange.End)
	if rootHandle != 0 {
		fmt.Printf("  root handle : %d\n", rootHandle)
	}
	return nil
}

func runRmspace(cmd *cobra.Command, args []string) error {
	dataSpace, _ := cmd.Flags().GetString("data-space")
	metaSpace, _ := cmd.Flags().GetString("meta-space")
	collName, _ := cmd.Flags().GetString("coll-name")
	purge, _ := cmd.Flags().GetBool("purge")
	deleteStorage, _ := cmd.Flags().GetBool("delete-storage")

	if deleteStorage {
		if err := os.RemoveAll(dataSpace); err != nil {
			return fmt.Errorf("rmspace: remove data_space: %w", err)
		}
		if err := os.RemoveAll(metaSpace); err != nil {
			return fmt.Errorf("rmspace: remove meta_space: %w", err)
		}
		fmt.Printf("Storage space deleted: %s, %s\n", dataSpace, metaSpace)
		return nil
	}

	if collName == "" {
		return fmt.Errorf("rmspace: --coll-name is required unless --delete-storage is given")
	}

	reg, err := collection.Open(dataSpace, metaSpace)
	if err != nil {
		return fmt.Errorf("rmspace: %w", err)
	}
	defer reg.Close()

	collID, err := reg.Lookup(collName)
	if err != nil {
		return fmt.Errorf("rmspace: %w", err)
	}
	if err := reg.Remove(collID, purge); err != nil {
		return fmt.Errorf("rmspace: %w", err)
	}

	fmt.Printf("Collection removed: %s\n", collName)
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	dataSpace, _ := cmd.Flags().GetString("data-space")
	metaSpace, _ := cmd.Flags().GetString("meta-space")
	maxCount, _ := cmd.Flags().GetInt("max-count")

	collName, handle, err := parseDataspacePath(args[0])
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}

	reg, err := collection.Open(dataSpace, metaSpace)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	defer reg.Close()

	collID, err := reg.Lookup(collName)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	c, _, store, err := reg.Get(collID)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	if handle.IsNull() {
		handle = c.RootHandle
	}

	attr, err := store.DspaceGetAttr(handle)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	if attr.Type != types.DSTypeDirectory {
		return fmt.Errorf("ls: handle %s is a %s, not a directory", handle, attr.Type)
	}

	entries, _, err := store.KeyvalIterate(handle, types.CursorStart, maxCount)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-32s -> %s\n", string(e.Key), string(e.Value))
	}
	return nil
}

// parseDataspacePath splits "collection" or "collection:handle" into a
// collection name and a handle. An empty handle means "the collection's
// root directory" and is resolved by the caller.
func parseDataspacePath(path string) (string, types.Handle, error) {
	collName, rest, found := strings.Cut(path, ":")
	if !found {
		return collName, types.NullHandle, nil
	}
	lo, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return "", types.NullHandle, fmt.Errorf("invalid handle %q: %w", rest, err)
	}
	return collName, types.Handle{Lo: lo}, nil
}

func runPerfmon(cmd *cobra.Command, args []string) error {
	mount := args[0]
	interval, _ := cmd.Flags().GetDuration("interval")

	client, err := rpc.Dial(mount)
	if err != nil {
		return fmt.Errorf("perfmon: dial %s: %w", mount, err)
	}
	defer client.Close()

	fmt.Printf("%-6s %-15s %-12s %-12s %-10s %-10s %s\n",
		"ID", "START", "READ", "WRITE", "MD_READ", "MD_WRITE", "VALID")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeenID int64 = -1
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		entries, err := client.Since(ctx, lastSeenID)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "perfmon: poll failed: %v\n", err)
			continue
		}
		for _, e := range entries {
			printPerfEntry(e)
			lastSeenID = e.ID
		}
	}
	return nil
}

func printPerfEntry(e perfmon.Entry) {
	if !e.Valid {
		fmt.Printf("%-6d %-15s %-12s %-12s %-10s %-10s %v\n", e.ID, "-", "-", "-", "-", "-", e.Valid)
		return
	}
	fmt.Printf("%-6d %-15d %-12d %-12d %-10d %-10d %v\n",
		e.ID, e.StartTimeMS, e.ReadBytes, e.WriteBytes, e.MDReadCount, e.MDWriteCount, e.Valid)
}
