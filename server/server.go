// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"go/types"
	"net/http"
)

// HumanPayload is a value of one of the basic types an instrument reports,
// with T telling which field is populated
type HumanPayload struct {
	T      types.BasicKind
	Float  float64
	Int    int
	Bool   bool
	String string
}

// FloatT is a struct with a single F64 field, {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single Int field, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// BoolT is a struct with a single Bool field, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a struct with a single Str field, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// QuantityT is a magnitude and a unit symbol, {"f64": value, "unit": "Hz"}
type QuantityT struct {
	F64  float64 `json:"f64"`
	Unit string  `json:"unit,omitempty"`
}

// EncodeAndRespond writes the populated field of hp as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Float64:
		v = FloatT{F64: hp.Float}
	case types.Int:
		v = IntT{Int: hp.Int}
	case types.Bool:
		v = BoolT{Bool: hp.Bool}
	default:
		v = StrT{Str: hp.String}
	}
	Respond(w, v)
}

// Respond writes v as JSON with status 200
func Respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
