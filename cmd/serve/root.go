// Package serve implements the serve command: an HTTP gateway serving shard
// ranges through a coordinator, plus Prometheus metrics.
package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/shardstore"
	"github.com/ValentinKolb/dVol/rpc/gateway"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeCmd starts the HTTP gateway
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve shard ranges over HTTP",
	Long: `Serve shard ranges over HTTP. The configuration can be set via command
line flags or environment variables. The format of the environment variables
is DVOL_<flag> (e.g. DVOL_ENDPOINT=0.0.0.0:9090)`,
	PreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	RunE:    run,
}

func init() {
	key := "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", util.WrapString("The address on which the API will listen"))

	key = "store"
	ServeCmd.Flags().String(key, "file://./shards", util.WrapString("URL of the shard store (e.g. file:///data/shards, mem://)"))
}

// run starts the gateway and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	conf, err := util.GetCoordinatorConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	store, err := shardstore.Open(ctx, viper.GetString("store"))
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := util.NewCoordinator(conf)
	if err != nil {
		return err
	}
	defer c.Dispose()

	srv := &http.Server{
		Addr:              viper.GetString("endpoint"),
		Handler:           gateway.NewRouter(c, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	util.Logger.Infof("Serving %s on %s", store, srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	util.Logger.Infof("Server stopped")
	return nil
}
