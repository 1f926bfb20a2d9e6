package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/chart"
	"github.com/itohio/energymon/pkg/config"
	"github.com/itohio/energymon/pkg/datalog"
	"github.com/itohio/energymon/pkg/link"
	"github.com/itohio/energymon/pkg/sample"
)

const (
	updateInterval  = 33 * time.Millisecond // ~30 FPS
	summaryInterval = time.Second
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM6 or /dev/ttyUSB0)")
		baudFlag           = flag.Int("b", 0, "Baud rate override")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated source instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Display moving average window (0 = disabled, overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *baudFlag > 0 {
		cfg.Serial.BaudRate = *baudFlag
	}
	if *averageSamplesFlag >= 0 {
		cfg.Display.AverageSamples = *averageSamplesFlag
	}
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(lvl)
	}

	application := app.NewWithID("com.itohio.energymon")
	window := application.NewWindow("Energy Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:     cfg,
		cfgPath: *configFlag,
		window:  window,
		useMock: *mockFlag,
		chart:   chart.New(cfg.Display),
	}
	state.buildController()

	toolbar := createToolbar(state)
	state.summaryLabel = widget.NewLabel(summaryText(nil))
	state.statusLabel = widget.NewLabel("Idle")

	content := container.NewBorder(
		toolbar,
		container.NewBorder(nil, nil, state.statusLabel, nil, state.summaryLabel),
		nil,
		nil,
		state.chart,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		if err := state.ctl.Stop(); err != nil {
			logrus.Errorf("stop on exit: %v", err)
		}
	})
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg     *config.Config
	cfgPath string
	window  fyne.Window
	useMock bool

	ctl   *acquire.Controller
	dirty bool // settings changed, rebuild controller before next start

	chart        *chart.Chart
	summaryLabel *widget.Label
	statusLabel  *widget.Label
	startBtn     *widget.Button
	stopBtn      *widget.Button
	zeroBtn      *widget.Button
	scaleBtn     *widget.Button

	// Throttling for chart updates
	updateMu    sync.Mutex
	lastUpdate  time.Time
	lastSummary time.Time
}

// buildController creates the controller for the current configuration, keeping calibration.
func (s *appState) buildController() {
	var src link.Source
	if s.useMock {
		src = link.NewMock(&s.cfg.Mock)
	} else {
		src = link.New(s.cfg.Serial.Port, s.cfg.Serial.BaudRate, s.cfg.Serial.BufferSize,
			link.WithTimeouts(s.cfg.Serial.ReadTimeout, s.cfg.Serial.JoinTimeout))
	}
	sink := datalog.NewCSV(s.cfg.Logging.Dir)

	ctl := acquire.New(s.cfg, src, sink)
	if s.ctl != nil {
		ctl.SetCalibration(s.ctl.Calibration())
	}
	ctl.OnSample(func(sample.Sample) { s.onSample(ctl) })
	s.ctl = ctl
	s.chart.Configure(s.cfg.Display)
	s.dirty = false
}

// onSample runs on the consumption loop of ctl; it only schedules throttled UI work.
func (s *appState) onSample(ctl *acquire.Controller) {
	s.updateMu.Lock()
	now := time.Now()
	if now.Sub(s.lastUpdate) < updateInterval {
		s.updateMu.Unlock()
		return
	}
	s.lastUpdate = now
	withSummary := now.Sub(s.lastSummary) >= summaryInterval
	if withSummary {
		s.lastSummary = now
	}
	s.updateMu.Unlock()

	window := ctl.Window(time.Duration(s.cfg.Display.WindowSeconds * float64(time.Second)))
	var summary *analysis.Summary
	if withSummary {
		summary = currentSummary(ctl)
	}

	fyne.Do(func() {
		if summary != nil {
			s.chart.Update(window, summary.AvgMA, true)
			s.summaryLabel.SetText(summaryText(summary))
		} else {
			s.chart.Update(window, 0, false)
		}
	})
}

// createToolbar creates the Start, Stop, Calibrate and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	state.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		handleStart(state)
	})
	state.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		handleStop(state)
	})
	state.stopBtn.Disable()

	state.zeroBtn = widget.NewButtonWithIcon("Zero", theme.ViewRefreshIcon(), func() {
		handleCalibrateZero(state)
	})
	state.scaleBtn = widget.NewButtonWithIcon("Scale", theme.ContentAddIcon(), func() {
		showScaleDialog(state)
	})

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.startBtn, state.stopBtn),
		container.NewHBox(state.zeroBtn, state.scaleBtn, settingsBtn),
		nil,
	)
}

func (s *appState) setBusy(running bool, status string) {
	if running {
		s.startBtn.Disable()
		s.stopBtn.Enable()
		s.zeroBtn.Disable()
	} else {
		s.startBtn.Enable()
		s.stopBtn.Disable()
		s.zeroBtn.Enable()
	}
	s.statusLabel.SetText(status)
}

func handleStart(state *appState) {
	if state.dirty && state.ctl.State() == acquire.Idle {
		state.buildController()
	}
	state.startBtn.Disable()
	state.chart.Clear()

	go func() {
		err := state.ctl.Start()
		fyne.Do(func() {
			if err != nil {
				state.setBusy(false, "Idle")
				dialog.ShowError(fmt.Errorf("failed to start: %w", err), state.window)
				return
			}
			state.setBusy(true, "Recording to "+state.ctl.LogPath())
		})
	}()
}

func handleStop(state *appState) {
	state.stopBtn.Disable()

	go func() {
		err := state.ctl.Stop()
		summary := currentSummary(state.ctl)
		fyne.Do(func() {
			state.setBusy(false, "Idle")
			state.summaryLabel.SetText(summaryText(summary))
			if err != nil {
				dialog.ShowError(err, state.window)
			}
		})
	}()
}

func handleCalibrateZero(state *appState) {
	msg := fmt.Sprintf("Make sure no current flows through the sensor.\n%d samples will be averaged.", state.cfg.Acquisition.ZeroSamples)
	dialog.ShowConfirm("Zero calibration", msg, func(ok bool) {
		if !ok {
			return
		}
		if state.dirty {
			state.buildController()
		}
		state.startBtn.Disable()
		state.zeroBtn.Disable()
		state.statusLabel.SetText("Calibrating...")

		go func() {
			n, err := state.ctl.CalibrateZero(state.cfg.Acquisition.ZeroSamples)
			cal := state.ctl.Calibration()
			fyne.Do(func() {
				state.setBusy(false, "Idle")
				if err != nil {
					dialog.ShowError(fmt.Errorf("zero calibration failed: %w", err), state.window)
					return
				}
				if n == 0 {
					dialog.ShowInformation("Zero calibration", "No samples received, calibration unchanged.", state.window)
					return
				}
				dialog.ShowInformation("Zero calibration",
					fmt.Sprintf("Offset set to %.3f mA from %d samples.", cal.OffsetMA, n), state.window)
			})
		}()
	}, state.window)
}
