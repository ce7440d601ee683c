// Package decode turns an encoded audio file into a mono float32 stream at a
// fixed target sample rate.
//
// It sniffs the container from its leading bytes, dispatches to a codec
// adapter behind the shared Decoder interface, downmixes to a single
// channel, and resamples the result with a wrapped dsp/resample.Resampler
// driven in fixed-size sub-chunks.
package decode
