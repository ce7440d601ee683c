// Package fftplan provides a length-keyed cache of forward FFT plans shared
// across concurrent callers.
//
// Plan acquisition is guarded by a mutex held only long enough to look up or
// build a plan for a given length; the transform itself runs outside that
// lock, so concurrent transforms on distinct (or identical, read-only) plans
// never serialize on each other.
package fftplan
