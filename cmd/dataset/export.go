package dataset

import (
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ExportCmd encodes volume files into a container
var ExportCmd = &cobra.Command{
	Use:   "export [flags] <volume.json>...",
	Short: "Encode volumes into a container",
	Long: `Encode one or more volumes into a chunked container. Every argument is a
JSON document as returned by the volume retrieval service (width, height,
depth, channels, dataType and base64 encoded samples); the argument position
is the volume's series index.

With --stream the chunks are written to the output file as the worker
produces them, otherwise the worker returns the complete container.`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	RunE:    runExport,
}

func init() {
	key := "out"
	ExportCmd.Flags().StringP(key, "o", "dataset.dvol", util.WrapString("Path of the container to write"))

	key = "stream"
	ExportCmd.Flags().Bool(key, false, util.WrapString("Write chunks as they are encoded instead of buffering the whole container"))

	key = "dataset-id"
	ExportCmd.Flags().String(key, "", util.WrapString("Dataset ID recorded in the manifest (a KSUID is generated if empty)"))
}

func runExport(cmd *cobra.Command, args []string) error {
	conf, err := util.GetCoordinatorConfig()
	if err != nil {
		return err
	}

	volumes := make([]volume.Volume, 0, len(args))
	for i, path := range args {
		v, err := readRemote(path, uint32(i))
		if err != nil {
			return err
		}
		volumes = append(volumes, v)
	}

	opts := conf.ExportOptions(viper.GetBool("stream"))
	opts.DatasetID = viper.GetString("dataset-id")

	c, err := util.NewCoordinator(conf)
	if err != nil {
		return err
	}
	defer c.Dispose()
	defer util.PrintStats(c)

	ctx, cancel := util.SignalContext()
	defer cancel()

	out := viper.GetString("out")
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()

	start := time.Now()
	var m *volume.Manifest

	if opts.Stream {
		// the header size only depends on the counts and the dataset id, so
		// the payload can be written behind a reserved header
		plan, err := codec.Plan(volumes, opts.EncodeOptions())
		if err != nil {
			return err
		}
		opts.DatasetID = plan.DatasetID
		offset := int64(plan.HeaderSize())

		res, err := c.Export(ctx, volumes, opts, func(chunk *volume.Chunk) error {
			data := chunk.Take()
			if _, err := f.WriteAt(data, offset); err != nil {
				return fault.NewStream(err, "writing chunk %d", chunk.Seq)
			}
			offset += int64(len(data))
			return nil
		})
		if err != nil {
			return err
		}
		m = res.Manifest

		header, err := m.MarshalHeader()
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(header, 0); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	} else {
		res, err := c.Export(ctx, volumes, opts, nil)
		if err != nil {
			return err
		}
		m = res.Manifest
		if _, err := f.Write(res.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
	}

	util.Logger.Infof("Exported dataset %s to %s (%d volumes, %d chunks, %s) in %s",
		m.DatasetID, out, len(m.Volumes), len(m.Chunks), util.FormatBytes(m.ContainerBytes()), util.Elapsed(start))
	fmt.Println(m.DatasetID)
	return nil
}

// readRemote parses a volume file in the retrieval service format
func readRemote(path string, index uint32) (volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return volume.Volume{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	v, err := volume.ParseRemote(f, index)
	if err != nil {
		return volume.Volume{}, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
