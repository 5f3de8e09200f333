package audio

import "math"

// Level computes the normalised RMS level (0.0–1.0) of little-endian int16
// mono PCM. It drives the client's recording-indicator animation; precision
// matters less than being cheap enough to run on every frame.
func Level(pcm []byte) float64 {
	samples := BytesToInt16s(pcm)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	level := rms / 32768.0
	if level > 1 {
		level = 1
	}
	return level
}
