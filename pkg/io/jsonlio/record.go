// Package jsonlio reads and writes observation buffers as JSON lines.
//
// A file holds two kinds of records. An "spw" record defines the channel
// grid of a spectral window. A "row" record carries one row of every
// quantity, indexed [pol][channel]. Consecutive rows with the same chunk,
// spectral window, field and time form one buffer.
package jsonlio

import (
	"time"
)

const (
	typeSPW = "spw"
	typeRow = "row"
)

// Complex is a visibility as [real, imag].
type Complex [2]float64

// SPWRecord defines the channelization of one spectral window.
type SPWRecord struct {
	Type  string    `json:"type"`
	SPW   int       `json:"spw"`
	Frame string    `json:"frame,omitempty"`
	Freq  []float64 `json:"freq"`
	Width []float64 `json:"width,omitempty"`
}

// RowRecord is one row of a buffer.
type RowRecord struct {
	Type           string      `json:"type"`
	Chunk          int         `json:"chunk"`
	SPW            int         `json:"spw"`
	Field          int         `json:"field"`
	Time           time.Time   `json:"time"`
	Row            int         `json:"row"`
	FlagRow        bool        `json:"flag_row,omitempty"`
	Data           [][]Complex `json:"data,omitempty"`
	Model          [][]Complex `json:"model,omitempty"`
	Corrected      [][]Complex `json:"corrected,omitempty"`
	Float          [][]float64 `json:"float_data,omitempty"`
	Flag           [][]bool    `json:"flag,omitempty"`
	WeightSpectrum [][]float64 `json:"weight_spectrum,omitempty"`
	SigmaSpectrum  [][]float64 `json:"sigma_spectrum,omitempty"`
	Weight         []float64   `json:"weight,omitempty"`
	Sigma          []float64   `json:"sigma,omitempty"`
}

// sameBuffer reports whether r belongs to the buffer started by first.
func (r RowRecord) sameBuffer(first RowRecord) bool {
	return r.Chunk == first.Chunk && r.SPW == first.SPW && r.Field == first.Field && r.Time.Equal(first.Time)
}

// nPol is the polarization count of the first quantity the row carries.
func (r RowRecord) nPol() int {
	switch {
	case r.Data != nil:
		return len(r.Data)
	case r.Model != nil:
		return len(r.Model)
	case r.Corrected != nil:
		return len(r.Corrected)
	case r.Float != nil:
		return len(r.Float)
	case r.Flag != nil:
		return len(r.Flag)
	case r.WeightSpectrum != nil:
		return len(r.WeightSpectrum)
	case r.SigmaSpectrum != nil:
		return len(r.SigmaSpectrum)
	case r.Weight != nil:
		return len(r.Weight)
	}
	return len(r.Sigma)
}

func toComplex(c Complex) complex128 { return complex(c[0], c[1]) }

func fromComplex(v complex128) Complex { return Complex{real(v), imag(v)} }

func same[T any](v T) T { return v }
