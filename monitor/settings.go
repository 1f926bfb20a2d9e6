package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/link"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createAcquisitionTab(state),
		createDisplayTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveSettings persists the configuration; the controller is rebuilt before the next run.
func saveSettings(state *appState) {
	if err := state.cfg.Save(state.cfgPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	state.dirty = true
	if state.ctl.State() != acquire.Idle {
		dialog.ShowInformation("Settings", "Changes apply to the next session.", state.window)
	}
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := link.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name -> port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudOptions := make([]string, 0, len(link.BaudRates))
	for _, b := range link.BaudRates {
		baudOptions = append(baudOptions, strconv.Itoa(b))
	}
	baudSelect := widget.NewSelect(baudOptions, nil)
	baudSelect.SetSelected(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selected := portMap[portSelect.Selected]
				if selected == "" {
					selected = portSelect.Selected
				}
				state.cfg.Serial.Port = selected
			}
			if b, err := strconv.Atoi(baudSelect.Selected); err == nil {
				state.cfg.Serial.BaudRate = b
			}
			saveSettings(state)
		},
	}

	return container.NewTabItem("Serial", form)
}

// createAcquisitionTab creates the Acquisition configuration tab.
func createAcquisitionTab(state *appState) *container.TabItem {
	acq := &state.cfg.Acquisition

	deviceEntry := widget.NewEntry()
	deviceEntry.SetText(acq.DeviceName)

	rateEntry := widget.NewEntry()
	rateEntry.SetText(strconv.Itoa(acq.SampleRateHz))

	voltageEntry := widget.NewEntry()
	voltageEntry.SetText(fmt.Sprintf("%.2f", acq.VoltageV))

	zeroEntry := widget.NewEntry()
	zeroEntry.SetText(strconv.Itoa(acq.ZeroSamples))

	sensitivityEntry := widget.NewEntry()
	sensitivityEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Sensor.SensitivityMVPerA))

	dirEntry := widget.NewEntry()
	dirEntry.SetText(state.cfg.Logging.Dir)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Device Name", Widget: deviceEntry},
			{Text: "Sample Rate (Hz)", Widget: rateEntry},
			{Text: "Voltage (V)", Widget: voltageEntry},
			{Text: "Zero Samples", Widget: zeroEntry},
			{Text: "Sensitivity (mV/A)", Widget: sensitivityEntry},
			{Text: "Log Directory", Widget: dirEntry},
		},
		OnSubmit: func() {
			if deviceEntry.Text != "" {
				acq.DeviceName = deviceEntry.Text
			}
			if r, err := strconv.Atoi(rateEntry.Text); err == nil && r > 0 {
				acq.SampleRateHz = r
			}
			if v, err := strconv.ParseFloat(voltageEntry.Text, 64); err == nil && v > 0 {
				acq.VoltageV = v
			}
			if n, err := strconv.Atoi(zeroEntry.Text); err == nil && n > 0 {
				acq.ZeroSamples = n
			}
			if s, err := strconv.ParseFloat(sensitivityEntry.Text, 64); err == nil && s > 0 {
				state.cfg.Sensor.SensitivityMVPerA = s
			}
			if dirEntry.Text != "" {
				state.cfg.Logging.Dir = dirEntry.Text
			}
			saveSettings(state)
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// createDisplayTab creates the Display configuration tab.
func createDisplayTab(state *appState) *container.TabItem {
	disp := &state.cfg.Display

	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", disp.WindowSeconds))

	pointsEntry := widget.NewEntry()
	pointsEntry.SetText(strconv.Itoa(disp.MaxPoints))

	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(disp.AverageSamples))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Max Points", Widget: pointsEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageEntry},
		},
		OnSubmit: func() {
			if ws, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil && ws > 0 {
				disp.WindowSeconds = ws
			}
			if mp, err := strconv.Atoi(pointsEntry.Text); err == nil && mp > 0 {
				disp.MaxPoints = mp
			}
			if avg, err := strconv.Atoi(averageEntry.Text); err == nil && avg >= 0 {
				disp.AverageSamples = avg
			}
			saveSettings(state)
		},
	}

	return container.NewTabItem("Display", form)
}

// createMockTab creates the simulated source configuration tab.
func createMockTab(state *appState) *container.TabItem {
	mock := &state.cfg.Mock

	baseEntry := widget.NewEntry()
	baseEntry.SetText(fmt.Sprintf("%.1f", mock.BaseMA))

	amplitudeEntry := widget.NewEntry()
	amplitudeEntry.SetText(fmt.Sprintf("%.1f", mock.AmplitudeMA))

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.1f", mock.NoiseMA))

	periodEntry := widget.NewEntry()
	periodEntry.SetText(mock.Period.String())

	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(mock.SampleInterval.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Base (mA)", Widget: baseEntry},
			{Text: "Amplitude (mA)", Widget: amplitudeEntry},
			{Text: "Noise (mA)", Widget: noiseEntry},
			{Text: "Load Period", Widget: periodEntry},
			{Text: "Sample Interval", Widget: intervalEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(baseEntry.Text, 64); err == nil {
				mock.BaseMA = v
			}
			if v, err := strconv.ParseFloat(amplitudeEntry.Text, 64); err == nil {
				mock.AmplitudeMA = v
			}
			if v, err := strconv.ParseFloat(noiseEntry.Text, 64); err == nil {
				mock.NoiseMA = v
			}
			if d, err := time.ParseDuration(periodEntry.Text); err == nil && d > 0 {
				mock.Period = d
			}
			if d, err := time.ParseDuration(intervalEntry.Text); err == nil && d > 0 {
				mock.SampleInterval = d
			}
			saveSettings(state)
		},
	}

	return container.NewTabItem("Mock", form)
}

// showScaleDialog asks for a reference current and the sensor reading taken at it.
func showScaleDialog(state *appState) {
	measuredEntry := widget.NewEntry()
	measuredEntry.SetPlaceHolder("2.0")
	sensorEntry := widget.NewEntry()
	sensorEntry.SetPlaceHolder("1950")

	items := []*widget.FormItem{
		{Text: "Reference current (A)", Widget: measuredEntry},
		{Text: "Sensor reading (mA)", Widget: sensorEntry},
	}
	dialog.ShowForm("Scale calibration", "Apply", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		measured, err := strconv.ParseFloat(measuredEntry.Text, 64)
		if err != nil {
			dialog.ShowError(fmt.Errorf("invalid reference current %q", measuredEntry.Text), state.window)
			return
		}
		sensor, err := strconv.ParseFloat(sensorEntry.Text, 64)
		if err != nil || sensor == 0 {
			dialog.ShowError(fmt.Errorf("invalid sensor reading %q", sensorEntry.Text), state.window)
			return
		}
		state.ctl.CalibrateScale(measured, sensor)
		dialog.ShowInformation("Scale calibration",
			fmt.Sprintf("Scale set to %.4f", state.ctl.Calibration().Scale), state.window)
	}, state.window)
}
