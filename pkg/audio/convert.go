package audio

// ResampleMono16 resamples little-endian int16 mono PCM from srcRate to
// dstRate using linear interpolation. Good enough for speech recognition
// input; not intended for playback-quality conversion.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	src := BytesToInt16s(pcm)
	if len(src) == 0 {
		return nil
	}

	outLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if outLen == 0 {
		return nil
	}
	dst := make([]int16, outLen)

	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(src)-1 {
			dst[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(src[idx])
		b := float64(src[idx+1])
		dst[i] = int16(a + (b-a)*frac)
	}
	return Int16sToBytes(dst)
}
