package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/api"
	"github.com/itohio/energymon/pkg/calib"
	"github.com/itohio/energymon/pkg/metrics"
	"github.com/itohio/energymon/pkg/publish"
)

func NewRunCommand() *cobra.Command {
	var (
		src      sourceFlags
		cal      calibrationFlags
		duration time.Duration
		withAPI  bool
		withMQTT bool
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Record one session",
		GroupID: gAcquisition,
		Long: `Record one session until interrupted or until --duration elapses.

Samples are logged to a new CSV file under the configured log directory. The session summary
is printed when recording stops. The HTTP API and the MQTT publisher run alongside when enabled.

Calibration lasts for this run only. Pass --offset/--scale to reuse known values, --zero to
measure the offset with no load before recording, or --ref-a/--ref-ma to derive the scale
from a reference meter reading:

  corrected = (raw - offset) * scale`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cmd.Flags().Changed("api") {
				cfg.API.Enabled = withAPI
			}
			if cmd.Flags().Changed("mqtt") {
				cfg.MQTT.Enabled = withMQTT
			}

			metrics.Init()
			ctl := newController(cfg, &src)
			if err := cal.apply(cmd, ctl); err != nil {
				return err
			}

			if cfg.MQTT.Enabled {
				closePublisher, err := startPublisher(ctx, ctl)
				if err != nil {
					return err
				}
				defer closePublisher()
			}

			apiErr := make(chan error, 1)
			if cfg.API.Enabled {
				go func() {
					apiErr <- api.New(ctl).ListenAndServe(ctx, cfg.API.Addr)
				}()
			}

			if err := ctl.Start(); err != nil {
				return err
			}
			cmd.Printf("Recording to %s\n", bold("%s", ctl.LogPath()))

			var deadline <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				deadline = timer.C
			}

			var runErr error
			select {
			case <-ctx.Done():
				logrus.Info("interrupted, stopping session")
			case <-deadline:
			case err := <-apiErr:
				runErr = err
			}

			if err := ctl.Stop(); err != nil {
				runErr = errors.Join(runErr, err)
			}
			printSession(cmd, ctl)
			return runErr
		},
	}

	f := cmd.Flags()
	f.BoolVar(&src.mock, "mock", false, "use the simulated source instead of the serial port")
	f.StringVarP(&src.port, "port", "p", "", "serial port (overrides config)")
	f.IntVarP(&src.baud, "baud", "b", 0, "baud rate (overrides config)")
	f.DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 = until interrupted)")
	f.BoolVar(&withAPI, "api", false, "serve the HTTP API (overrides config)")
	f.BoolVar(&withMQTT, "mqtt", false, "publish samples to MQTT (overrides config)")
	cal.register(cmd)

	return cmd
}

// startPublisher forwards every buffered sample to the configured broker.
// The returned func stops the publisher and disconnects.
func startPublisher(ctx context.Context, ctl *acquire.Controller) (func(), error) {
	client, disconnect, err := publish.Connect(cfg.MQTT)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	pub := publish.New(client, cfg.MQTT.Topic, publish.DefaultOutboxSize)
	ctl.OnSample(pub.Offer)
	go pub.Run(pctx)

	return func() {
		cancel()
		<-pub.Done()
		disconnect()
	}, nil
}

// calibrationFlags configure the calibration applied to one run.
type calibrationFlags struct {
	offsetMA    float64
	scale       float64
	zero        bool
	zeroSamples int
	refA        float64
	refMA       float64
}

func (f *calibrationFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.offsetMA, "offset", 0, "zero offset in mA")
	fs.Float64Var(&f.scale, "scale", 1, "gain correction")
	fs.BoolVar(&f.zero, "zero", false, "measure the zero offset before recording (no load connected)")
	fs.IntVarP(&f.zeroSamples, "zero-samples", "n", 0, "reads averaged by --zero (0 = config zero_samples)")
	fs.Float64Var(&f.refA, "ref-a", 0, "reference current in A measured by an external meter")
	fs.Float64Var(&f.refMA, "ref-ma", 0, "current in mA reported by the sensor for the --ref-a load")
	cmd.MarkFlagsRequiredTogether("ref-a", "ref-ma")
}

func (f *calibrationFlags) apply(cmd *cobra.Command, ctl *acquire.Controller) error {
	flags := cmd.Flags()
	if flags.Changed("offset") || flags.Changed("scale") {
		if f.scale == 0 {
			return fmt.Errorf("scale must be non-zero")
		}
		ctl.SetCalibration(calib.State{OffsetMA: f.offsetMA, Scale: f.scale})
	}

	if f.zero {
		n, err := ctl.CalibrateZero(f.zeroSamples)
		if err != nil {
			return fmt.Errorf("failed to calibrate zero: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("no samples received during zero calibration")
		}
		logrus.Infof("zero offset calibrated from %d samples", n)
	}

	if flags.Changed("ref-ma") {
		if f.refMA == 0 {
			return fmt.Errorf("--ref-ma must be non-zero")
		}
		ctl.CalibrateScale(f.refA, f.refMA)
	}

	state := ctl.Calibration()
	cmd.Printf("Calibration: offset %s, scale %s\n", bold("%.3f mA", state.OffsetMA), bold("%.5f", state.Scale))
	return nil
}

func printSession(cmd *cobra.Command, ctl *acquire.Controller) {
	cmd.Println()
	cmd.Println(bold("Session:"))
	if path := ctl.LogPath(); path != "" {
		cmd.Printf("  Log: %s\n", path)
	}

	s, ok := ctl.Summarize()
	if !ok {
		cmd.Println("  No samples recorded.")
		return
	}
	for _, line := range summaryLines(s) {
		cmd.Println(line)
	}
}
