// Package parquetio stores observation buffers in Parquet files, one
// record per (row, polarization) spectrum.
package parquetio

// Spectrum is one polarization of one row. Every record carries the channel
// grid of its spectral window so a file is self-describing. Empty slices
// and nil pointers mark quantities the buffer did not have.
type Spectrum struct {
	Chunk          int32     `parquet:"chunk"`
	SPW            int32     `parquet:"spw"`
	Field          int32     `parquet:"field"`
	TimeUnixNano   int64     `parquet:"time_unix_nano"`
	Row            int32     `parquet:"row"`
	Pol            int32     `parquet:"pol"`
	Frame          string    `parquet:"frame,dict"`
	FlagRow        bool      `parquet:"flag_row"`
	Freq           []float64 `parquet:"freq"`
	Width          []float64 `parquet:"width"`
	DataRe         []float64 `parquet:"data_re"`
	DataIm         []float64 `parquet:"data_im"`
	ModelRe        []float64 `parquet:"model_re"`
	ModelIm        []float64 `parquet:"model_im"`
	CorrectedRe    []float64 `parquet:"corrected_re"`
	CorrectedIm    []float64 `parquet:"corrected_im"`
	Float          []float64 `parquet:"float_data"`
	Flag           []bool    `parquet:"flag"`
	WeightSpectrum []float64 `parquet:"weight_spectrum"`
	SigmaSpectrum  []float64 `parquet:"sigma_spectrum"`
	Weight         *float64  `parquet:"weight,optional"`
	Sigma          *float64  `parquet:"sigma,optional"`
}

func (s *Spectrum) sameBuffer(o *Spectrum) bool {
	return s.Chunk == o.Chunk && s.SPW == o.SPW && s.Field == o.Field && s.TimeUnixNano == o.TimeUnixNano
}
