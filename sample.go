package iaqmon

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Accuracy is the engine's confidence in the reported IAQ.
//
//	0: stabilizing, 1: low, 2: medium (calibrating), 3: high
type Accuracy uint8

// Sample is one engine output cycle. It is immutable once handed to subscribers.
type Sample struct {
	Timestamp     time.Duration
	IAQ           float64
	Accuracy      Accuracy
	Temperature   physic.Temperature
	Pressure      physic.Pressure
	Humidity      physic.RelativeHumidity
	CO2           float64 // ppm equivalent
	BreathVOC     float64 // ppm equivalent
	GasPercentage float64
}

// Subscriber receives samples on the acquisition goroutine and must not block.
type Subscriber func(Sample)

// Celsius returns the temperature in degrees Celsius.
func (s Sample) Celsius() float64 {
	return float64(s.Temperature-physic.ZeroCelsius) / float64(physic.Celsius)
}

// Hectopascal returns the pressure in hPa.
func (s Sample) Hectopascal() float64 {
	return float64(s.Pressure) / float64(100*physic.Pascal)
}

// RelativeHumidity returns the humidity in %RH.
func (s Sample) RelativeHumidity() float64 {
	return float64(s.Humidity) / float64(physic.PercentRH)
}

// IAQLevel buckets the index into the 0-5 scale used by HomeKit air quality
// accessories. Zero means unknown and is reported until the engine reaches
// medium accuracy.
func (s Sample) IAQLevel() int {
	switch {
	case s.Accuracy < 2:
		return 0
	case s.IAQ < 51:
		return 1
	case s.IAQ < 101:
		return 2
	case s.IAQ < 151:
		return 3
	case s.IAQ < 201:
		return 4
	default:
		return 5
	}
}

func (s Sample) String() string {
	return fmt.Sprintf("iaq=%.1f (%s, accuracy %d) temperature=%.2fC pressure=%.2fhPa humidity=%.2f%% co2=%.0fppm bvoc=%.2fppm gas=%.0f%%",
		s.IAQ, IAQRating(s.IAQ), s.Accuracy, s.Celsius(), s.Hectopascal(), s.RelativeHumidity(), s.CO2, s.BreathVOC, s.GasPercentage)
}

func IAQRating(iaq float64) string {
	switch {
	case iaq <= 50:
		return "EXCELLENT"
	case iaq <= 100:
		return "GOOD"
	case iaq <= 150:
		return "LIGHTLY POLLUTED"
	case iaq <= 200:
		return "MODERATELY POLLUTED"
	case iaq <= 300:
		return "HEAVILY POLLUTED"
	default:
		return "SEVERELY POLLUTED"
	}
}

func HumidityRating(rh float64) string {
	switch {
	case rh < 40:
		return "DRY"
	case rh < 60:
		return "OPTIMAL"
	default:
		return "TOO HUMID"
	}
}

func BreathVOCRating(ppm float64) string {
	switch {
	case ppm <= 200:
		return "VERY GOOD"
	case ppm <= 300:
		return "GOOD"
	case ppm <= 400:
		return "ACCEPTABLE"
	case ppm <= 600:
		return "MODERATE"
	case ppm <= 1000:
		return "POOR"
	default:
		return "BAD"
	}
}

func CO2Rating(ppm float64) string {
	switch {
	case ppm <= 400:
		return "IDEAL"
	case ppm <= 800:
		return "GOOD"
	case ppm <= 1000:
		return "ACCEPTABLE"
	case ppm <= 1500:
		return "POOR"
	case ppm <= 2500:
		return "VERY POOR"
	case ppm <= 5000:
		return "UNHEALTHY"
	default:
		return "HAZARDOUS"
	}
}

func GasRating(percentage float64) string {
	switch {
	case percentage <= 50:
		return "POOR"
	case percentage < 70:
		return "MODERATE"
	case percentage < 90:
		return "GOOD"
	default:
		return "VERY GOOD"
	}
}
