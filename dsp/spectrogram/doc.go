// Package spectrogram turns a mono float32 sample buffer into a sequence of
// windowed, magnitude-only half-spectra (a short-time Fourier transform).
//
// It composes three shared, concurrency-safe resources from sibling
// packages: a length-keyed window cache (dsp/window), a length-keyed FFT
// plan cache (dsp/fftplan), and a buffer pool (dsp/buffer) that supplies
// the real/imaginary scratch slices of the magnitude step.
package spectrogram
