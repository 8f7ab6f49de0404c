// Package audio groups the signal path from recordings to model input:
//
//   - audiofile: WAV, FLAC and raw PCM decoding
//   - preprocess: resampling, peak normalization and fitting to a
//     target length
//   - stft: Hann-windowed short-time Fourier transform, plus the raw
//     live spectrogram
//   - fbank: mel filterbank, dB conversion and normalization into the
//     classifier's input spectrogram
package audio
