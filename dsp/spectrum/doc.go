// Package spectrum provides FFT-adjacent spectrum-domain utilities.
//
// The package intentionally does not implement FFT itself. It operates on
// real and imaginary parts produced by an external FFT backend.
package spectrum
