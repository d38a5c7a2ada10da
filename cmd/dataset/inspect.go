package dataset

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InspectCmd prints the manifest of a container
var InspectCmd = &cobra.Command{
	Use:   "inspect [flags] <container>",
	Short: "Print the manifest of a container",
	Long: `Print the manifest of a container. Only the header is read unless
--verify is set, which decodes every chunk on its own and checks its length.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	RunE:    runInspect,
}

func init() {
	key := "verify"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Decode every chunk and check its raw length"))
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	m, err := codec.ReadManifest(f)
	if err != nil {
		return err
	}
	fmt.Print(m.String())

	if !viper.GetBool("verify") {
		return nil
	}
	for i, ref := range m.Chunks {
		raw, err := codec.ReadChunkAt(f, m, i)
		if err != nil {
			return err
		}
		if uint64(len(raw)) != ref.RawLength {
			return fmt.Errorf("chunk %d has %d raw bytes, manifest says %d", i, len(raw), ref.RawLength)
		}
	}
	fmt.Printf("  %-22s: ok\n", "Verified")
	return nil
}
