package location

// Proximity labels shown to the party waiting for the other to arrive.
const (
	ProximityArrived   = "arrived"
	ProximityVeryClose = "very_close"
	ProximityNearby    = "nearby"
	ProximityEnRoute   = "en_route"
)

// Distance bands in meters.
const (
	ArrivedRadius   = 50.0
	VeryCloseRadius = 250.0
	NearbyRadius    = 1000.0
)

// ProximityLabel buckets a distance into a coarse label, so the exact gap is
// not needed to render progress.
func ProximityLabel(distanceMeters float64) string {
	switch {
	case distanceMeters < 0:
		return ""
	case distanceMeters <= ArrivedRadius:
		return ProximityArrived
	case distanceMeters <= VeryCloseRadius:
		return ProximityVeryClose
	case distanceMeters <= NearbyRadius:
		return ProximityNearby
	default:
		return ProximityEnRoute
	}
}
