package game

import "math"

// Lerp linearly interpolates between a and b. alpha outside [0,1] is clamped.
func Lerp(a, b, alpha float64) float64 {
	if alpha <= 0 {
		return a
	}
	if alpha >= 1 {
		return b
	}
	return a + (b-a)*alpha
}

// LerpHeading interpolates compass headings along the shortest circular arc,
// so 350° to 10° passes through 0°, never through 180°.
func LerpHeading(a, b, alpha float64) float64 {
	if alpha <= 0 {
		return normalizeHeading(a)
	}
	if alpha >= 1 {
		return normalizeHeading(b)
	}
	diff := math.Mod(b-a, 360)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return normalizeHeading(a + diff*alpha)
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// LerpLocation blends two position fixes. The coordinate, altitude and speed
// interpolate linearly, heading circularly. Accuracy takes the newer value.
func LerpLocation(from, to Location, alpha float64) Location {
	return Location{
		Latitude:  Lerp(from.Latitude, to.Latitude, alpha),
		Longitude: Lerp(from.Longitude, to.Longitude, alpha),
		Altitude:  Lerp(from.Altitude, to.Altitude, alpha),
		Accuracy:  to.Accuracy,
		Heading:   LerpHeading(from.Heading, to.Heading, alpha),
		Speed:     Lerp(from.Speed, to.Speed, alpha),
		Timestamp: to.Timestamp,
	}
}
