package parquetio

import (
	"bytes"
	"context"
	"testing"

	"github.com/wdm0006/regrid/dataio"
	"github.com/wdm0006/regrid/pkg/regrid"
)

func BenchmarkParquetWrite(b *testing.B) {
	opts := dataio.DefaultSyntheticOptions()
	var out bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out.Reset()
		src := dataio.NewSynthetic(opts)
		if err := regrid.Drain(context.Background(), src, NewSink(&out, src)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParquetRead(b *testing.B) {
	src := dataio.NewSynthetic(dataio.DefaultSyntheticOptions())
	var out bytes.Buffer
	if err := regrid.Drain(context.Background(), src, NewSink(&out, src)); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Read(bytes.NewReader(out.Bytes())); err != nil {
			b.Fatal(err)
		}
	}
}
