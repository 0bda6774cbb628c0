package srs

import (
	"io"
	"math"

	"github.com/astrogo/fitsio"
)

// WriteFits streams a measurement to w as a single 2 row float64 image,
// channel 1 then channel 2.  The shorter channel is padded with NaN; NPTS1 and
// NPTS2 record the true lengths.
func WriteFits(w io.Writer, metadata []fitsio.Card, data [2][]float64) error {
	n := len(data[0])
	if len(data[1]) > n {
		n = len(data[1])
	}
	metadata = append(metadata,
		fitsio.Card{Name: "NPTS1", Value: len(data[0]), Comment: "points read from channel 1"},
		fitsio.Card{Name: "NPTS2", Value: len(data[1]), Comment: "points read from channel 2"})

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{n, 2})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	buf := make([]float64, 2*n)
	for row, ch := range data {
		for i := 0; i < n; i++ {
			v := math.NaN()
			if i < len(ch) {
				v = ch[i]
			}
			buf[row*n+i] = v
		}
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
