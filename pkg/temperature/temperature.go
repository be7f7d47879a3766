// Package temperature holds the temperature formatting and conversion
// helpers shared by the Carrier provider, the CSV log, and the CLI.
package temperature

import (
	"strconv"
)

// FormatSetpoint renders a setpoint in the one-decimal form the Infinity
// config document expects (e.g. 70 -> "70.0").
func FormatSetpoint(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// ParseDegrees parses a temperature string from a remote document. The
// second return value reports whether the field held a usable number.
func ParseDegrees(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// WholeDegrees truncates toward zero, matching the legacy CSV layout that
// records temperatures as whole numbers.
func WholeDegrees(f float64) int {
	return int(f)
}

// FahrenheitToCelsius converts degrees Fahrenheit to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}

// CelsiusToFahrenheit converts degrees Celsius to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}
