package playback

import "math"

// MaxGain is the top of the session mixer range.
const MaxGain = 65535

const volumeCurve = 6.908

// VolumeToGain maps a linear 0-100 level onto the mixer's logarithmic gain.
// Anything above 99.9% saturates to MaxGain.
func VolumeToGain(level int) uint16 {
	normalized := float64(clampVolume(level)) / MaxVolume

	f := math.Exp(normalized*volumeCurve) / 1000
	if normalized > 0.999 {
		f = 1
	}
	return uint16(math.Min(f*MaxGain, MaxGain))
}
