package analysis

import "math"

const (
	// DefaultVoltageV is the nominal supply rail of the sensor.
	DefaultVoltageV = 5.0
	// DefaultSampleRateHz is the acquisition cadence.
	DefaultSampleRateHz = 50
)

// Summary holds metrics derived from a session buffer.
type Summary struct {
	AvgMA    float64 `json:"avg_mA"`
	RMSMA    float64 `json:"rms_mA"`
	EnergyWh float64 `json:"energy_Wh"`
	Samples  int     `json:"samples"`
}

// Average returns the arithmetic mean, or 0 for no samples.
func Average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// RMS returns the root mean square, or 0 for no samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// EstimateEnergyWh estimates consumed energy assuming samples were taken at
// sampleRateHz from a rail at voltageV:
//
//	E = mean(I)/1000 * V * (n / rate) / 3600
func EstimateEnergyWh(samples []float64, voltageV float64, sampleRateHz int) float64 {
	if len(samples) == 0 || sampleRateHz <= 0 {
		return 0
	}
	iAvgA := Average(samples) / 1000
	durationS := float64(len(samples)) / float64(sampleRateHz)
	return iAvgA * voltageV * durationS / 3600
}

// Summarize computes all metrics over samples.
func Summarize(samples []float64, voltageV float64, sampleRateHz int) Summary {
	return Summary{
		AvgMA:    Average(samples),
		RMSMA:    RMS(samples),
		EnergyWh: EstimateEnergyWh(samples, voltageV, sampleRateHz),
		Samples:  len(samples),
	}
}
