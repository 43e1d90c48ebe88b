package geo

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// StoredKind tags the encoding a class record used for its venue.
type StoredKind int

const (
	KindAbsent StoredKind = iota
	KindPointText
	KindGeoJSON
)

func (k StoredKind) String() string {
	switch k {
	case KindPointText:
		return "point_text"
	case KindGeoJSON:
		return "geojson"
	default:
		return "absent"
	}
}

// StoredLocation is the parsed form of a class record's location column:
//
//	PointText   "SRID=4326;POINT(lng lat)" or "POINT(lng lat)"
//	GeoJSON     {"type": "Point", "coordinates": [lng, lat]}
//	Absent      nothing usable
//
// Build one with ParseStoredLocation, then call Coordinate.
type StoredLocation struct {
	Kind        StoredKind
	Text        string
	Coordinates []float64
}

// PointText wraps geographic point text.
func PointText(s string) StoredLocation {
	return StoredLocation{Kind: KindPointText, Text: s}
}

// GeoJSONLike wraps a GeoJSON-style coordinates array ([lng, lat]).
func GeoJSONLike(coords []float64) StoredLocation {
	return StoredLocation{Kind: KindGeoJSON, Coordinates: coords}
}

// Absent is the empty stored location.
func Absent() StoredLocation {
	return StoredLocation{Kind: KindAbsent}
}

// pointPattern finds POINT(lng lat) anywhere in the text. Numbers may omit
// the digits on either side of the decimal point ("77." or ".5").
var pointPattern = regexp.MustCompile(
	`(?i)\bPOINT\s*\(\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s+([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*\)`,
)

type geoJSONShape struct {
	Coordinates []float64 `json:"coordinates"`
}

// ParseStoredLocation classifies a raw location value as read from the
// store. raw may be a string, []byte, json.RawMessage, a decoded JSON
// object (map[string]any) or nil. Anything unrecognised is Absent.
func ParseStoredLocation(raw any) StoredLocation {
	switch v := raw.(type) {
	case nil:
		return Absent()
	case string:
		return parseLocationText(v)
	case *string:
		if v == nil {
			return Absent()
		}
		return parseLocationText(*v)
	case []byte:
		return parseLocationText(string(v))
	case json.RawMessage:
		return parseLocationText(string(v))
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Absent()
		}
		return parseGeoJSON(b)
	default:
		return Absent()
	}
}

func parseLocationText(s string) StoredLocation {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent()
	}
	if strings.HasPrefix(s, "{") {
		return parseGeoJSON([]byte(s))
	}
	if pointPattern.MatchString(s) {
		return PointText(s)
	}
	// A JSON string that itself holds point text, as some drivers return.
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return parseLocationText(inner)
		}
	}
	return Absent()
}

func parseGeoJSON(b []byte) StoredLocation {
	var shape geoJSONShape
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&shape); err != nil {
		return Absent()
	}
	if len(shape.Coordinates) < 2 {
		return Absent()
	}
	return GeoJSONLike(shape.Coordinates)
}

// Coordinate extracts {lat, lng} from the stored encoding, undoing the
// longitude-first order both encodings use. ok is false for Absent or when
// the numbers are not finite.
func (l StoredLocation) Coordinate() (Coordinate, bool) {
	var c Coordinate

	switch l.Kind {
	case KindPointText:
		m := pointPattern.FindStringSubmatch(l.Text)
		if m == nil {
			return Coordinate{}, false
		}
		lng, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Coordinate{}, false
		}
		lat, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Coordinate{}, false
		}
		c = Coordinate{Lat: lat, Lng: lng}
	case KindGeoJSON:
		if len(l.Coordinates) < 2 {
			return Coordinate{}, false
		}
		c = Coordinate{Lat: l.Coordinates[1], Lng: l.Coordinates[0]}
	default:
		return Coordinate{}, false
	}

	if !c.IsFinite() {
		return Coordinate{}, false
	}
	return c, true
}

// ResolveTarget picks the authoritative venue coordinate for a class.
//
// Query parameters win when both are present and form a legal coordinate
// in either order, so a link with latitude and longitude exchanged still
// reaches the swap check. Otherwise the stored location is used. ok == false means the venue is not available: callers must treat
// that as "unknown", never as "out of range".
func ResolveTarget(queryLat, queryLng *float64, stored StoredLocation) (Coordinate, bool) {
	if q, ok := QueryTarget(queryLat, queryLng); ok {
		return q, true
	}
	return stored.Coordinate()
}

// QueryTarget is the query half of ResolveTarget: the link coordinate, if
// both halves are present and it is legal in either order.
func QueryTarget(queryLat, queryLng *float64) (Coordinate, bool) {
	if queryLat == nil || queryLng == nil {
		return Coordinate{}, false
	}
	q := Coordinate{Lat: *queryLat, Lng: *queryLng}
	if !q.IsValid() && !q.Swapped().IsValid() {
		return Coordinate{}, false
	}
	return q, true
}
