package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const header = "# IAQ monitor configuration.\n# This file was created with default values. Edit it and restart the monitor.\n\n"

var comments = map[string]string{
	"homebridge":                          "# Homebridge HTTP webhooks endpoint receiving the sensor values.",
	"homebridge.url":                      "# Leave empty to disable publishing, e.g. \"http://192.168.1.100:51828\".",
	"homebridge.publish_interval_seconds": "# Interval between two publications.",
	"homebridge.accessories":              "# Accessory ids per quantity. Empty ids are not published.",
	"sensor.backend":                      "# Bus backend: linux, periph, nanopi, mcp2221 or simulated.",
	"sensor.engine":                       "# Air quality engine implementation.",
	"sensor.device":                       "# I2C bus device of the gas sensor.",
	"sensor.address":                      "# 7-bit I2C address of the gas sensor (0x76 or 0x77).",
	"sensor.temperature_offset":           "# Temperature offset in Celsius compensating heat from the board.",
	"sensor.sample_rate":                  "# Engine sample rate: ulp (5 min), lp (3 s) or cont (1 s). Must match the engine config.",
	"sensor.bus_speed_khz":                "# I2C clock in kHz for the periph backend, 0 keeps the driver default.",
	"state":                               "# Engine calibration state, restored on start.",
	"log":                                 "# Rotating log file.",
}

// WriteDefault writes the default configuration, with comments, to path. An
// existing file is never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: could not create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: could not write %s: %w", path, err)
	}
	return nil
}

// Marshal encodes cfg as commented YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: could not encode: %w", err)
	}
	annotate(&doc, "")

	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("config: could not encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: could not encode: %w", err)
	}
	return buf.Bytes(), nil
}

func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if c, ok := comments[path]; ok {
			key.HeadComment = c
		}
		annotate(value, path)
	}
}
