// Package geo provides the point-in-polygon containment test used by the
// breach detector. Coordinates are plain WGS84 lat/lng degrees; polygons
// are ordered vertex rings with no closing duplicate required.
package geo

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// ValidLat reports whether lat is within [-90, 90].
func ValidLat(lat float64) bool {
	return lat >= -90 && lat <= 90
}

// ValidLng reports whether lng is within [-180, 180].
func ValidLng(lng float64) bool {
	return lng >= -180 && lng <= 180
}

// Valid reports whether both coordinates of p are in bounds.
func (p Point) Valid() bool {
	return ValidLat(p.Lat) && ValidLng(p.Lng)
}

// Contains reports whether p lies inside the polygon described by ring
// using the ray-casting even-odd rule. Rings with fewer than 3 vertices
// never contain anything.
//
// Points exactly on an edge or vertex get a deterministic but unspecified
// answer; that is inherent to ray casting and callers must not rely on
// boundary inclusion either way.
func Contains(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		// Edge straddles the point's latitude: endpoints on opposite sides.
		if (vi.Lat > p.Lat) == (vj.Lat > p.Lat) {
			continue
		}
		// Longitude where the edge crosses p.Lat.
		crossLng := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
		if p.Lng < crossLng {
			inside = !inside
		}
	}
	return inside
}
