package srs

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"

	"github.com/nasa-jpl/instrumentkit/generichttp"
	"github.com/nasa-jpl/instrumentkit/generichttp/ascii"
	"github.com/nasa-jpl/instrumentkit/server"
	"github.com/nasa-jpl/instrumentkit/server/middleware/locker"
	"github.com/nasa-jpl/instrumentkit/units"
)

// Measurement is the JSON form of a TakeMeasurement result
type Measurement struct {
	Ch1 []float64 `json:"ch1"`
	Ch2 []float64 `json:"ch2"`
}

// MeasureRequest asks for Samples points at Rate, e.g. {"rate": "64 Hz", "samples": 512}
type MeasureRequest struct {
	Rate    string `json:"rate"`
	Samples int    `json:"samples"`
}

// OffsetExpandRequest is the body of POST /offset-expand
type OffsetExpandRequest struct {
	Mode   string  `json:"mode"`
	Offset float64 `json:"offset"`
	Expand int     `json:"expand"`
}

// DisplayRequest is the body of POST /display
type DisplayRequest struct {
	Channel string `json:"channel"`
	Display string `json:"display"`
	Ratio   string `json:"ratio"`
}

// HTTPWrapper provides HTTP bindings on top of an SR830
type HTTPWrapper struct {
	SR830 *SR830

	// Locker, if not nil, is held for the duration of a measurement
	Locker *locker.Locker

	generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper around s with every route bound
func NewHTTPWrapper(s *SR830, l *locker.Locker) HTTPWrapper {
	w := HTTPWrapper{SR830: s, Locker: l, RouteTable: generichttp.RouteTable{}}
	rt := w.RouteTable
	generichttp.BindSettings(rt, s.Settings())
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/auto-offset"}] = generichttp.SetString(w.autoOffset)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/auto-phase"}] = w.autoPhase
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/offset-expand"}] = w.offsetExpand
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/display"}] = w.display
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/snap"}] = w.snap
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/points"}] = w.points
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/buffer/{channel}"}] = w.buffer
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/buffer/start"}] = w.action(s.StartScan)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/buffer/pause"}] = w.action(s.Pause)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/buffer/clear"}] = w.action(s.ClearDataBuffer)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/measure"}] = w.measure
	ascii.InjectRawComm(rt, s)
	if l != nil {
		locker.Inject(w, l)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPWrapper) autoOffset(s string) error {
	return h.SR830.AutoOffset(Mode(s))
}

func (h HTTPWrapper) autoPhase(w http.ResponseWriter, r *http.Request) {
	h.action(h.SR830.AutoPhase)(w, r)
}

func (h HTTPWrapper) action(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fcn(); err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (h HTTPWrapper) offsetExpand(w http.ResponseWriter, r *http.Request) {
	req := OffsetExpandRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.SR830.SetOffsetExpand(Mode(req.Mode), req.Offset, req.Expand)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h HTTPWrapper) display(w http.ResponseWriter, r *http.Request) {
	req := DisplayRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Ratio == "" {
		req.Ratio = string(None)
	}
	err = h.SR830.SetChannelDisplay(Mode(req.Channel), Mode(req.Display), Mode(req.Ratio))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// snap answers GET /snap?a=x&b=y with {"x": v, "y": v}
func (h HTTPWrapper) snap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := q.Get("a"), q.Get("b")
	if a == "" || b == "" {
		http.Error(w, "snap needs query parameters a and b", http.StatusBadRequest)
		return
	}
	vals, err := h.SR830.DataSnap(Mode(a), Mode(b))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	server.Respond(w, map[string]float64{strings.ToLower(a): vals[0], strings.ToLower(b): vals[1]})
}

func (h HTTPWrapper) points(w http.ResponseWriter, r *http.Request) {
	n, err := h.SR830.NumDataPoints()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	server.Respond(w, server.IntT{Int: n})
}

func (h HTTPWrapper) buffer(w http.ResponseWriter, r *http.Request) {
	vals, err := h.SR830.ReadDataBuffer(Mode(chi.URLParam(r, "channel")))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	server.Respond(w, vals)
}

// measure runs TakeMeasurement.  The reply is JSON, or a FITS file when the
// request Accepts application/fits.
func (h HTTPWrapper) measure(w http.ResponseWriter, r *http.Request) {
	req := MeasureRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rate, err := units.Parse(req.Rate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Locker != nil {
		if !h.Locker.TryLock() {
			w.WriteHeader(http.StatusLocked)
			return
		}
		defer h.Locker.Unlock()
	}
	start := time.Now()
	data, err := h.SR830.TakeMeasurement(rate, req.Samples)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/fits") {
		w.Header().Set("Content-Type", "application/fits")
		meta := []fitsio.Card{
			{Name: "RATE", Value: units.Assume(rate, units.Hertz).String(), Comment: "sample rate"},
			{Name: "DATE-OBS", Value: start.UTC().Format(time.RFC3339), Comment: "acquisition start"},
		}
		if err = WriteFits(w, meta, data); err != nil {
			generichttp.Error(w, err)
		}
		return
	}
	server.Respond(w, Measurement{Ch1: data[0], Ch2: data[1]})
}
