// Package preprocess conditions raw mono waveforms before spectral
// analysis: peak normalization, sample-rate conversion and length fitting.
//
// All functions take []float32 and return a fresh slice. Inputs are never
// mutated.
//
// The canonical order used by both training and inference is
//
//	Normalize -> Resample -> PadOrTrim
//
// and is available as Prepare.
package preprocess
