package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

// Autocorrelation returns the normalised autocorrelation of x at lags
// 0..len(x)-1. The series is zero-padded to a power of two of at least twice
// its length so the circular FFT convolution equals the linear one.
// A constant series has undefined autocorrelation and yields nil.
func Autocorrelation(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return nil
	}
	mean := stat.Mean(x, nil)

	m := nextPow2(2 * n)
	seq := make([]float64, m)
	for i, v := range x {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, seq)
	for i, c := range coeff {
		a := cmplx.Abs(c)
		coeff[i] = complex(a*a, 0)
	}
	acov := fft.Sequence(nil, coeff)

	if acov[0] <= 0 || math.IsNaN(acov[0]) {
		return nil
	}
	rho := make([]float64, n)
	for k := range rho {
		rho[k] = acov[k] / acov[0]
	}
	return rho
}

// PowerSpectrum returns |X_k| for k in [0, n/2] of the mean-removed,
// Hann-windowed series.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	mean := stat.Mean(data, nil)
	seq := make([]float64, len(data))
	for i, v := range data {
		seq[i] = v - mean
	}
	seq = window.Hann(seq)

	fft := fourier.NewFFT(len(seq))
	coeff := fft.Coefficients(nil, seq)
	ps := make([]float64, len(coeff))
	for i, c := range coeff {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
