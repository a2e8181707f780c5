// Package extract pulls structured data out of free message text.
package extract

import "regexp"

const coord = `(-?\d+\.\d+)`

// Each pattern captures latitude then longitude.
var coordPatterns = []*regexp.Regexp{
	// Google Maps: maps.google.com/maps?q=LAT,LON (comma may be %2C).
	regexp.MustCompile(`(?i)https?://(?:www\.)?(?:maps\.)?google\.com/maps\?q=` + coord + `(?:%2c|,)` + coord),
	// Apple Maps: ?q= or ?ll=, possibly after other parameters.
	regexp.MustCompile(`(?i)https?://maps\.apple\.com/\?(?:\S*&)?(?:q|ll)=` + coord + `,` + coord),
	// OpenStreetMap query form.
	regexp.MustCompile(`(?i)https?://(?:www\.)?openstreetmap\.org/?\?(?:\S*&)?mlat=` + coord + `&(?:\S*&)?mlon=` + coord),
	// OpenStreetMap fragment form: #map=ZOOM/LAT/LON.
	regexp.MustCompile(`(?i)https?://(?:www\.)?openstreetmap\.org/?\S*#map=[\d.]+/` + coord + `/` + coord),
}

// ExtractCoordinates returns the first latitude/longitude pair found in a
// supported map link. The values are the exact substrings from the text.
func ExtractCoordinates(text string) (lat, lon string, ok bool) {
	if text == "" {
		return "", "", false
	}
	for _, re := range coordPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}
