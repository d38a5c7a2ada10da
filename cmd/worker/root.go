// Package worker implements the hidden worker command. A coordinator in
// process mode starts it as a child process and speaks the stream protocol
// over its stdin and stdout; logs go to stderr.
package worker

import (
	"os"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/serializer"
	"github.com/ValentinKolb/dVol/rpc/server"
	"github.com/ValentinKolb/dVol/rpc/transport/stream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// WorkerCmd runs a worker on stdio
var WorkerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a background worker on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries frames
		common.SetLogOutput(os.Stderr)
		return util.BindCommandFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ser, err := serializer.New(viper.GetString("serializer"))
		if err != nil {
			return err
		}

		ctx, cancel := util.SignalContext()
		defer cancel()

		util.Logger.Debugf("Worker %d started", os.Getpid())
		return server.NewWorker(stream.NewStdio(ser)).Serve(ctx)
	},
}
