// Package tracking implements the Trajectory Predictor (C8): dead
// reckoning and great-circle interpolation for aircraft whose position
// has gone briefly stale, adapted from the teacher's telescope-pointing
// predictor to the canonical meters/meters-per-second AircraftState.
package tracking

import (
	"math"
	"time"

	"aircraftdata/pkg/adsb"
	"aircraftdata/pkg/coordinates"
)

const (
	minPredictAge = 30 * time.Second
	maxPredictAge = 10 * time.Minute
	minPredictVelocityMPS = 50.0

	metersPerDegLat = 111000.0

	maxAltitudeMeters = 50000.0 * adsb.FeetToMeters
)

// Predict implements query.Predictor. It decides whether state
// qualifies for prediction and, if so, returns an updated copy with
// latitude/longitude/altitude advanced to now and a confidence derived
// from elapsed time and route availability. Returns (state, 0, false)
// unchanged when prediction does not apply.
func Predict(state adsb.AircraftState, route *adsb.Route, now time.Time) (adsb.AircraftState, float64, bool) {
	age := time.Duration(now.Unix()-state.LastContact) * time.Second
	if age < minPredictAge || age > maxPredictAge {
		return state, 0, false
	}
	if state.OnGround {
		return state, 0, false
	}
	if state.Category != nil && *state.Category == adsb.RotorcraftCategory {
		return state, 0, false
	}
	if state.Velocity == nil || *state.Velocity < minPredictVelocityMPS {
		return state, 0, false
	}

	elapsed := age.Seconds()
	predicted := state

	if route != nil && route.Departure.Latitude != nil && route.Departure.Longitude != nil &&
		route.Arrival.Latitude != nil && route.Arrival.Longitude != nil {
		lat, lon, confidence := predictAlongRoute(state, *route, now, elapsed)
		predicted.Latitude, predicted.Longitude = lat, lon
		predicted = withPredictedAltitude(predicted, elapsed)
		return predicted, confidence, true
	}

	lat, lon := deadReckon(state.Latitude, state.Longitude, valueOr(state.TrueTrack, 0), *state.Velocity, elapsed)
	predicted.Latitude, predicted.Longitude = lat, lon
	predicted = withPredictedAltitude(predicted, elapsed)
	confidence := clampRange(confidenceForElapsed(elapsed)*0.7, 0.5, 1.0) // no route: dead reckoning penalty, floor preserved
	return predicted, confidence, true
}

// confidenceForElapsed maps elapsed prediction time to [0.5,1.0],
// decaying linearly across the 30s-10min eligible window.
func confidenceForElapsed(elapsedSeconds float64) float64 {
	window := maxPredictAge.Seconds() - minPredictAge.Seconds()
	frac := (elapsedSeconds - minPredictAge.Seconds()) / window
	c := 1.0 - 0.5*clamp01(frac)
	return clampRange(c, 0.5, 1.0)
}

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// deadReckon advances (lat, lon) along trackDeg at velocityMPS for
// elapsedSeconds using a local flat-earth projection, per the dead
// reckoning mode when no route is known.
func deadReckon(lat, lon, trackDeg, velocityMPS, elapsedSeconds float64) (float64, float64) {
	distance := velocityMPS * elapsedSeconds
	trackRad := trackDeg * coordinates.DegreesToRadians

	dNorth := distance * math.Cos(trackRad)
	dEast := distance * math.Sin(trackRad)

	metersPerDegLon := metersPerDegLat * math.Cos(lat*coordinates.DegreesToRadians)
	if metersPerDegLon == 0 {
		metersPerDegLon = 1e-9
	}

	newLat := lat + dNorth/metersPerDegLat
	newLon := lon + dEast/metersPerDegLon
	return newLat, normalizeLongitude(newLon)
}

// predictAlongRoute interpolates along the great circle between a
// route's departure and arrival, with the progress fraction a 0.7/0.3
// blend of time-based and distance-based progress.
func predictAlongRoute(state adsb.AircraftState, route adsb.Route, now time.Time, elapsedSeconds float64) (lat, lon, confidence float64) {
	dep := coordinates.Geographic{Latitude: *route.Departure.Latitude, Longitude: *route.Departure.Longitude}
	arr := coordinates.Geographic{Latitude: *route.Arrival.Latitude, Longitude: *route.Arrival.Longitude}
	cur := coordinates.Geographic{Latitude: state.Latitude, Longitude: state.Longitude}

	totalDistance := coordinates.DistanceNauticalMiles(dep, arr)
	if totalDistance <= 0 {
		l, lo := deadReckon(state.Latitude, state.Longitude, valueOr(state.TrueTrack, 0), valueOr(state.Velocity, 0), elapsedSeconds)
		return l, lo, clampRange(confidenceForElapsed(elapsedSeconds)*0.7, 0.5, 1.0)
	}

	distanceProgress := coordinates.DistanceNauticalMiles(dep, cur) / totalDistance

	timeProgress := distanceProgress
	if route.ScheduledDeparture != nil && route.ScheduledArrival != nil {
		duration := route.ScheduledArrival.Sub(*route.ScheduledDeparture).Seconds()
		if duration > 0 {
			timeProgress = now.Sub(*route.ScheduledDeparture).Seconds() / duration
		}
	}

	progress := 0.7*timeProgress + 0.3*distanceProgress

	velocityNMPerSec := valueOr(state.Velocity, 0) / 1852.0
	if totalDistance > 0 {
		progress += velocityNMPerSec * elapsedSeconds / totalDistance
	}
	progress = clamp01(progress)

	newLat, newLon := interpolateGreatCircle(dep.Latitude, dep.Longitude, arr.Latitude, arr.Longitude, progress)

	confidence = confidenceForElapsed(elapsedSeconds)
	return newLat, newLon, confidence
}

// withPredictedAltitude extrapolates altitude from vertical_rate when
// known, clamped to [0, 50000ft]; otherwise a coarse flight-phase
// heuristic nudges altitude toward cruise.
func withPredictedAltitude(state adsb.AircraftState, elapsedSeconds float64) adsb.AircraftState {
	if state.VerticalRate != nil && state.BaroAltitude != nil {
		newAlt := *state.BaroAltitude + (*state.VerticalRate)*elapsedSeconds
		newAlt = clampRange(newAlt, 0, maxAltitudeMeters)
		state.BaroAltitude = &newAlt
		return state
	}
	if state.BaroAltitude != nil {
		alt := flightPhaseHeuristic(*state.BaroAltitude, elapsedSeconds)
		state.BaroAltitude = &alt
	}
	return state
}

// flightPhaseHeuristic nudges altitude toward a 10,668m (35,000ft)
// cruise level when vertical_rate is unavailable: climbing if well
// below cruise, descending if well above, otherwise flat.
func flightPhaseHeuristic(currentAltitude, elapsedSeconds float64) float64 {
	const cruiseAltitude = 10668.0 // 35,000 ft
	const climbRateMPS = 10.0      // ~2000 fpm
	const descendRateMPS = -7.5    // ~1500 fpm

	switch {
	case currentAltitude < cruiseAltitude-1000:
		return clampRange(currentAltitude+climbRateMPS*elapsedSeconds, 0, maxAltitudeMeters)
	case currentAltitude > cruiseAltitude+1000:
		return clampRange(currentAltitude+descendRateMPS*elapsedSeconds, 0, maxAltitudeMeters)
	default:
		return currentAltitude
	}
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func normalizeLongitude(lon float64) float64 {
	if lon > 180.0 {
		return lon - 360.0
	}
	if lon < -180.0 {
		return lon + 360.0
	}
	return lon
}

// interpolateGreatCircle finds a point along a great circle path using
// the standard slerp formula; fraction=0 returns start, fraction=1
// returns end.
func interpolateGreatCircle(lat1, lon1, lat2, lon2, fraction float64) (float64, float64) {
	lat1Rad := lat1 * coordinates.DegreesToRadians
	lon1Rad := lon1 * coordinates.DegreesToRadians
	lat2Rad := lat2 * coordinates.DegreesToRadians
	lon2Rad := lon2 * coordinates.DegreesToRadians

	d := math.Acos(
		math.Sin(lat1Rad)*math.Sin(lat2Rad) +
			math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lon2Rad-lon1Rad),
	)
	if d < 1e-10 {
		return lat1, lon1
	}

	a := math.Sin((1-fraction)*d) / math.Sin(d)
	b := math.Sin(fraction*d) / math.Sin(d)

	x := a*math.Cos(lat1Rad)*math.Cos(lon1Rad) + b*math.Cos(lat2Rad)*math.Cos(lon2Rad)
	y := a*math.Cos(lat1Rad)*math.Sin(lon1Rad) + b*math.Cos(lat2Rad)*math.Sin(lon2Rad)
	z := a*math.Sin(lat1Rad) + b*math.Sin(lat2Rad)

	latRad := math.Atan2(z, math.Sqrt(x*x+y*y))
	lonRad := math.Atan2(y, x)

	return latRad * coordinates.RadiansToDegrees, lonRad * coordinates.RadiansToDegrees
}
