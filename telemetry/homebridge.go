package telemetry

import (
	"github.com/mklimuk/iaqmon"
)

// Updater receives metric values.
type Updater interface {
	Update(metric string, value float64)
}

// Accessories maps sample quantities to Homebridge accessory ids. Empty ids
// are not published.
type Accessories struct {
	Temperature string `yaml:"temperature"`
	Humidity    string `yaml:"humidity"`
	IAQ         string `yaml:"iaq"`
	CO2         string `yaml:"co2"`
	VOC         string `yaml:"voc"`
}

func DefaultAccessories() Accessories {
	return Accessories{
		Temperature: "rpi4temperature",
		Humidity:    "rpi4humidity",
		IAQ:         "rpi4iaq",
	}
}

// Homebridge returns a subscriber that turns samples into accessory updates.
// The temperature offset compensates sensor self-heating. IAQ is reported on
// the HomeKit 0-5 air quality scale.
func Homebridge(u Updater, acc Accessories, temperatureOffset float64) iaqmon.Subscriber {
	return func(s iaqmon.Sample) {
		if acc.Temperature != "" {
			u.Update(acc.Temperature, s.Celsius()-temperatureOffset)
		}
		if acc.Humidity != "" {
			u.Update(acc.Humidity, s.RelativeHumidity())
		}
		if acc.IAQ != "" {
			u.Update(acc.IAQ, float64(s.IAQLevel()))
		}
		if acc.CO2 != "" {
			u.Update(acc.CO2, s.CO2)
		}
		if acc.VOC != "" {
			u.Update(acc.VOC, s.BreathVOC)
		}
	}
}
