package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itohio/energymon/pkg/api"
	"github.com/itohio/energymon/pkg/metrics"
)

func NewServeCommand() *cobra.Command {
	var (
		src  sourceFlags
		addr string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API and wait for remote commands",
		GroupID: gAcquisition,
		Long: `Serve the HTTP API without starting a session.

Sessions are started and stopped with POST /start and POST /stop. Live samples are streamed on /stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				cfg.API.Addr = addr
			}

			metrics.Init()
			ctl := newController(cfg, &src)
			defer func() {
				if err := ctl.Stop(); err != nil {
					cmd.PrintErrf("failed to stop session: %v\n", err)
				}
			}()

			cmd.Printf("Serving on %s\n", bold("http://%s", cfg.API.Addr))
			return api.New(ctl).ListenAndServe(ctx, cfg.API.Addr)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&src.mock, "mock", false, "use the simulated source instead of the serial port")
	f.StringVarP(&src.port, "port", "p", "", "serial port (overrides config)")
	f.IntVarP(&src.baud, "baud", "b", 0, "baud rate (overrides config)")
	f.StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}
