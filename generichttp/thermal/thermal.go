// Package thermal exposes an HTTP interface to thermal controllers
package thermal

import (
	"net/http"

	"github.com/nasa-jpl/instrumentkit/generichttp"
)

// Controller is an interface to a thermal controller with a single channel
type Controller interface {
	// GetTemperatureSetpoint gets the temperature setpoint in Celsius
	GetTemperatureSetpoint() (float64, error)

	// SetTemperatureSetpoint sets the temperature setpoint in Celsius
	SetTemperatureSetpoint(float64) error

	// GetTemperature gets the temperature in Celsius
	GetTemperature() (float64, error)
}

// GetTemperatureSetpoint returns the temperature as JSON over HTTP
func GetTemperatureSetpoint(c Controller) http.HandlerFunc {
	return generichttp.GetFloat(c.GetTemperatureSetpoint)
}

// SetTemperatureSetpoint returns an HTTP handler func that sets the temperature setpoint over HTTP
func SetTemperatureSetpoint(c Controller) http.HandlerFunc {
	return generichttp.SetFloat(c.SetTemperatureSetpoint)
}

// GetTemperature returns an HTTP handler func that returns the temperature over HTTP
func GetTemperature(c Controller) http.HandlerFunc {
	return generichttp.GetFloat(c.GetTemperature)
}

// HTTPController binds routes to control temperature to the table
func HTTPController(c Controller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = GetTemperature(c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature-setpoint"}] = GetTemperatureSetpoint(c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/temperature-setpoint"}] = SetTemperatureSetpoint(c)
}
