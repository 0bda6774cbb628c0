package thorlabs

import (
	"net/http"

	"github.com/nasa-jpl/instrumentkit/generichttp"
	"github.com/nasa-jpl/instrumentkit/generichttp/ascii"
	"github.com/nasa-jpl/instrumentkit/generichttp/thermal"
	"github.com/nasa-jpl/instrumentkit/server"
	"github.com/nasa-jpl/instrumentkit/server/middleware/locker"
	"github.com/nasa-jpl/instrumentkit/units"
)

// StatusT is the JSON form of Status
type StatusT struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
	Degrees string `json:"degrees"`
}

// Thermal adapts a TC200 to thermal.Controller, in Celsius
type Thermal struct {
	*TC200
}

func celsius(q units.Quantity, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	return q.In(units.Celsius)
}

// GetTemperature returns the temperature in Celsius
func (t Thermal) GetTemperature() (float64, error) {
	return celsius(t.TC200.GetTemperature())
}

// GetTemperatureSetpoint returns the setpoint in Celsius
func (t Thermal) GetTemperatureSetpoint() (float64, error) {
	return celsius(t.TC200.GetSetpoint())
}

// SetTemperatureSetpoint sets the setpoint in Celsius
func (t Thermal) SetTemperatureSetpoint(c float64) error {
	return t.TC200.SetSetpoint(units.New(c, units.Celsius))
}

// HTTPWrapper provides HTTP bindings on top of a TC200
type HTTPWrapper struct {
	TC200 *TC200

	generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper around tc with every route bound
func NewHTTPWrapper(tc *TC200, l *locker.Locker) HTTPWrapper {
	w := HTTPWrapper{TC200: tc, RouteTable: generichttp.RouteTable{}}
	rt := w.RouteTable
	generichttp.BindSettings(rt, tc.Settings())
	thermal.HTTPController(Thermal{tc}, rt)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = w.status
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/name"}] = generichttp.GetString(tc.Name)
	ascii.InjectRawComm(rt, tc)
	if l != nil {
		locker.Inject(w, l)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPWrapper) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.TC200.GetStatus()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	server.Respond(w, StatusT{Enabled: st.Enabled(), Mode: st.Mode().String(), Degrees: st.Degrees().Symbol})
}
