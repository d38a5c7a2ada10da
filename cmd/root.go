package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dVol/cmd/dataset"
	"github.com/ValentinKolb/dVol/cmd/matrix"
	"github.com/ValentinKolb/dVol/cmd/serve"
	"github.com/ValentinKolb/dVol/cmd/shard"
	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/cmd/worker"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dvol",
		Short: "streaming volume container codec",
		Long: fmt.Sprintf(`dVol (v%s)

Encodes 3D volume series into chunked containers and decodes them again,
incrementally and off the calling goroutine, with shard range extraction
and a benchmark matrix gate.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dVol",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dVol v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(dataset.ExportCmd)
	RootCmd.AddCommand(dataset.ImportCmd)
	RootCmd.AddCommand(dataset.InspectCmd)
	RootCmd.AddCommand(shard.ShardCommands)
	RootCmd.AddCommand(matrix.MatrixCommands)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(worker.WorkerCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupCoordinatorFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
