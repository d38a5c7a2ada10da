package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ImportCmd decodes a container
var ImportCmd = &cobra.Command{
	Use:   "import [flags] <container>",
	Short: "Decode a container",
	Long: `Decode a container incrementally. Progress and milestones are reported
on stderr while the container is read. With --out-dir every decoded volume is
written to <out-dir>/volume-<index>.raw as soon as it is complete and is not
kept in memory.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	RunE:    runImport,
}

func init() {
	key := "out-dir"
	ImportCmd.Flags().String(key, "", util.WrapString("Directory receiving the raw sample data of every volume"))

	key = "quiet"
	ImportCmd.Flags().BoolP(key, "q", false, util.WrapString("Do not report progress"))
}

// fileSource is a reader source that knows the size of its file
type fileSource struct {
	codec.ChunkSource
	size int64
}

func (s fileSource) Size() int64 { return s.size }

func runImport(cmd *cobra.Command, args []string) error {
	conf, err := util.GetCoordinatorConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	src := fileSource{ChunkSource: codec.NewReaderSource(f, conf.PieceSize), size: info.Size()}

	c, err := util.NewCoordinator(conf)
	if err != nil {
		return err
	}
	defer c.Dispose()
	defer util.PrintStats(c)

	ctx, cancel := util.SignalContext()
	defer cancel()

	var cb codec.Callbacks
	if !viper.GetBool("quiet") {
		cb.OnProgress = func(p codec.Progress) {
			fmt.Fprintf(os.Stderr, "\r%s / %s", util.FormatBytes(p.BytesProcessed), util.FormatBytes(p.TotalBytes))
		}
		cb.OnMilestone = func(m codec.Milestone) {
			fmt.Fprintf(os.Stderr, "\n%s\n", m)
		}
		cb.OnVolumeDecoded = func(count, total int) {
			util.Logger.Debugf("Decoded volume %d of %d", count, total)
		}
	}

	outDir := viper.GetString("out-dir")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", outDir, err)
		}
		cb.OnVolume = func(v volume.Volume) error {
			path := filepath.Join(outDir, fmt.Sprintf("volume-%d.raw", v.Descriptor.Index))
			return os.WriteFile(path, v.Data, 0o644)
		}
	}

	start := time.Now()
	ds, err := c.Import(ctx, src, cb)
	if err != nil {
		return err
	}

	util.Logger.Infof("Imported dataset %s (%d volumes, %s raw) in %s",
		ds.Manifest.DatasetID, len(ds.Manifest.Volumes), util.FormatBytes(ds.Manifest.RawBytes()), util.Elapsed(start))
	for i, d := range ds.Manifest.Volumes {
		fmt.Printf("%-4d %s\n", i, d)
	}
	return nil
}
