package domain

import (
	"fmt"
	"math"
	"strings"
)

// Plausible bounds for a surface air temperature in degrees Celsius.
const (
	MinValidTempC = -100.0
	MaxValidTempC = 70.0
)

// TemperatureUnit is the unit that summary statistics are reported in.
type TemperatureUnit int

const (
	Celsius TemperatureUnit = iota
	Fahrenheit
	Kelvin
)

// ParseTemperatureUnit maps a case-insensitive unit name to a TemperatureUnit.
// Unknown names are an error; there is no fallback unit.
func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	case "kelvin", "k":
		return Kelvin, nil
	default:
		return 0, fmt.Errorf("unknown temperature unit %q", s)
	}
}

func (u TemperatureUnit) String() string {
	switch u {
	case Celsius:
		return "celsius"
	case Fahrenheit:
		return "fahrenheit"
	case Kelvin:
		return "kelvin"
	default:
		return fmt.Sprintf("TemperatureUnit(%d)", int(u))
	}
}

// Symbol returns the short display suffix for the unit, e.g. "°F".
func (u TemperatureUnit) Symbol() string {
	switch u {
	case Fahrenheit:
		return "°F"
	case Kelvin:
		return "K"
	default:
		return "°C"
	}
}

// Convert converts a Celsius value into u.
func (u TemperatureUnit) Convert(celsius float64) float64 {
	switch u {
	case Celsius:
		return celsius
	case Fahrenheit:
		return celsius*9.0/5.0 + 32.0
	case Kelvin:
		return celsius + 273.15
	default:
		panic(fmt.Sprintf("domain: unhandled temperature unit %d", int(u)))
	}
}

// ToCelsius is the inverse of Convert.
func (u TemperatureUnit) ToCelsius(v float64) float64 {
	switch u {
	case Celsius:
		return v
	case Fahrenheit:
		return (v - 32.0) * 5.0 / 9.0
	case Kelvin:
		return v - 273.15
	default:
		panic(fmt.Sprintf("domain: unhandled temperature unit %d", int(u)))
	}
}

// CleanTemperature reports whether a raw Celsius reading is usable: finite and
// within [MinValidTempC, MaxValidTempC]. Rejected readings are simply dropped
// by callers.
func CleanTemperature(celsius float64) (float64, bool) {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return 0, false
	}
	if celsius < MinValidTempC || celsius > MaxValidTempC {
		return 0, false
	}
	return celsius, true
}

// ConvertTemperature validates a raw Celsius reading and converts it into u.
func ConvertTemperature(celsius float64, u TemperatureUnit) (float64, bool) {
	v, ok := CleanTemperature(celsius)
	if !ok {
		return 0, false
	}
	return u.Convert(v), true
}
