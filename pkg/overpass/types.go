// Package overpass queries OSM office elements around a point from a
// failover list of interpreter endpoints.
package overpass

// Response is the wire shape of an interpreter answer.
type Response struct {
	Elements []Element `json:"elements"`
}

// Coord is a bare lat/lon pair.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is one raw OSM element. Nodes carry top-level coordinates; ways
// and relations queried with "out center" carry their centroid in Center.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *Coord            `json:"center"`
	Tags   map[string]string `json:"tags"`
}

// Coordinates resolves the element position from either source.
func (el *Element) Coordinates() (lat, lon float64, ok bool) {
	if el.Lat != nil && el.Lon != nil {
		return *el.Lat, *el.Lon, true
	}
	if el.Center != nil {
		return el.Center.Lat, el.Center.Lon, true
	}
	return 0, 0, false
}
