package scanner

// DefaultAnchors returns an ordered list of anchor points covering the
// continental United States at a spacing that keeps adjacent circles
// overlapping, so aircraft near a boundary are still seen by one of the
// two neighboring scans.
func DefaultAnchors() []Anchor {
	return []Anchor{
		{Name: "seattle", Lat: 47.45, Lon: -122.30, RadiusNM: 250},
		{Name: "portland", Lat: 45.59, Lon: -122.60, RadiusNM: 200},
		{Name: "sacramento", Lat: 38.57, Lon: -121.47, RadiusNM: 200},
		{Name: "san-francisco", Lat: 37.62, Lon: -122.38, RadiusNM: 200},
		{Name: "los-angeles", Lat: 33.94, Lon: -118.41, RadiusNM: 250},
		{Name: "san-diego", Lat: 32.73, Lon: -117.19, RadiusNM: 200},
		{Name: "phoenix", Lat: 33.43, Lon: -112.01, RadiusNM: 250},
		{Name: "las-vegas", Lat: 36.08, Lon: -115.15, RadiusNM: 200},
		{Name: "salt-lake-city", Lat: 40.79, Lon: -111.98, RadiusNM: 250},
		{Name: "denver", Lat: 39.86, Lon: -104.67, RadiusNM: 250},
		{Name: "albuquerque", Lat: 35.04, Lon: -106.61, RadiusNM: 200},
		{Name: "billings", Lat: 45.81, Lon: -108.54, RadiusNM: 250},
		{Name: "minneapolis", Lat: 44.88, Lon: -93.22, RadiusNM: 250},
		{Name: "omaha", Lat: 41.30, Lon: -95.89, RadiusNM: 200},
		{Name: "kansas-city", Lat: 39.30, Lon: -94.71, RadiusNM: 200},
		{Name: "dallas-fort-worth", Lat: 32.90, Lon: -97.04, RadiusNM: 250},
		{Name: "houston", Lat: 29.98, Lon: -95.34, RadiusNM: 200},
		{Name: "san-antonio", Lat: 29.53, Lon: -98.47, RadiusNM: 200},
		{Name: "chicago", Lat: 41.98, Lon: -87.90, RadiusNM: 250},
		{Name: "detroit", Lat: 42.21, Lon: -83.35, RadiusNM: 200},
		{Name: "st-louis", Lat: 38.75, Lon: -90.37, RadiusNM: 200},
		{Name: "memphis", Lat: 35.04, Lon: -89.98, RadiusNM: 200},
		{Name: "new-orleans", Lat: 29.99, Lon: -90.26, RadiusNM: 200},
		{Name: "atlanta", Lat: 33.64, Lon: -84.43, RadiusNM: 250},
		{Name: "jacksonville", Lat: 30.49, Lon: -81.69, RadiusNM: 200},
		{Name: "miami", Lat: 25.80, Lon: -80.29, RadiusNM: 200},
		{Name: "tampa", Lat: 27.98, Lon: -82.53, RadiusNM: 200},
		{Name: "charlotte", Lat: 35.21, Lon: -80.94, RadiusNM: 200},
		{Name: "washington-dc", Lat: 38.85, Lon: -77.04, RadiusNM: 200},
		{Name: "philadelphia", Lat: 39.87, Lon: -75.24, RadiusNM: 200},
		{Name: "new-york", Lat: 40.64, Lon: -73.78, RadiusNM: 250},
		{Name: "boston", Lat: 42.36, Lon: -71.01, RadiusNM: 200},
	}
}
