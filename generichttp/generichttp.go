// Package generichttp defines interfaces for generic devices
// and an extensible type that wraps them in an HTTP interface
package generichttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/server"
	"github.com/nasa-jpl/instrumentkit/units"
)

// MethodPath is a struct containing an HTTP method and a URL path
type MethodPath struct {
	Method, Path string
}

// RouteTable maps MethodPaths to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// HTTPer is something with a route table
type HTTPer interface {
	RT() RouteTable
}

// Endpoints returns the sorted, unique paths in the table
func (rt RouteTable) Endpoints() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(rt))
	for mp := range rt {
		if _, ok := seen[mp.Path]; ok {
			continue
		}
		seen[mp.Path] = struct{}{}
		out = append(out, mp.Path)
	}
	sort.Strings(out)
	return out
}

// Bind adds every route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.MethodFunc(mp.Method, mp.Path, h)
	}
}

// SubMuxSanitize converts a URL like "omc/nkt" to "/omc/nkt", the form
// chi.Router.Mount expects
func SubMuxSanitize(str string) string {
	str = strings.TrimSuffix(str, "*")
	str = strings.TrimSuffix(str, "/")
	if !strings.HasPrefix(str, "/") {
		str = "/" + str
	}
	return str
}

// ErrorStatus maps an error to an HTTP status.  Rejected input is a 400,
// anything the instrument or the wire did is a 500.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, property.ErrValidation), errors.Is(err, property.ErrType):
		return http.StatusBadRequest
	case errors.Is(err, comm.ErrProtocolTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status from ErrorStatus
func Error(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), ErrorStatus(err))
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := server.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := server.HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(s.Str)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := server.HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Payload converts a setting's value to its JSON form
func Payload(v interface{}) interface{} {
	switch x := v.(type) {
	case units.Quantity:
		return server.QuantityT{F64: x.Magnitude, Unit: x.Unit.Symbol}
	case float64:
		return server.FloatT{F64: x}
	case int:
		return server.IntT{Int: x}
	case bool:
		return server.BoolT{Bool: x}
	case string:
		return server.StrT{Str: x}
	case fmt.Stringer:
		return server.StrT{Str: x.String()}
	default:
		return server.StrT{Str: fmt.Sprint(x)}
	}
}

// GetSetting reads b and returns its value as JSON
func GetSetting(b property.Bound) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := b.Get()
		if err != nil {
			Error(w, err)
			return
		}
		server.Respond(w, Payload(v))
	}
}

// SetSetting parses {'str': value} with the setting's parser and writes it.
// Input the parser rejects is a 400.
func SetSetting(b property.Bound) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, err := b.Parse(s.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = b.Set(v)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// BindSettings adds a GET and a POST route per setting to rt, at /<name>
func BindSettings(rt RouteTable, settings []property.Bound) {
	for _, b := range settings {
		path := "/" + b.SettingName()
		rt[MethodPath{http.MethodGet, path}] = GetSetting(b)
		rt[MethodPath{http.MethodPost, path}] = SetSetting(b)
	}
}
