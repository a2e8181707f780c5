package extract

import "testing"

func TestExtractCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		lat, lon string
		ok       bool
	}{
		{"google maps", "Här: https://maps.google.com/maps?q=59.3293,18.0686 nu", "59.3293", "18.0686", true},
		{"google www", "https://www.google.com/maps?q=59.3293,18.0686", "59.3293", "18.0686", true},
		{"google encoded comma lower", "https://maps.google.com/maps?q=59.3293%2c18.0686", "59.3293", "18.0686", true},
		{"google encoded comma upper", "https://maps.google.com/maps?q=59.3293%2C18.0686", "59.3293", "18.0686", true},
		{"google negative", "https://maps.google.com/maps?q=-33.8688,-151.2093", "-33.8688", "-151.2093", true},
		{"google uppercase host", "HTTPS://MAPS.GOOGLE.COM/maps?q=1.5,2.5", "1.5", "2.5", true},
		{"apple q", "https://maps.apple.com/?q=59.3293,18.0686", "59.3293", "18.0686", true},
		{"apple ll", "https://maps.apple.com/?ll=59.3293,18.0686", "59.3293", "18.0686", true},
		{"apple ll after params", "https://maps.apple.com/?address=Main%20St&ll=-12.5,130.25&t=m", "-12.5", "130.25", true},
		{"osm query", "https://www.openstreetmap.org/?mlat=59.3293&mlon=18.0686", "59.3293", "18.0686", true},
		{"osm query no www", "https://openstreetmap.org/?mlat=59.3293&mlon=18.0686#map=15/59.3293/18.0686", "59.3293", "18.0686", true},
		{"osm query extra params", "https://www.openstreetmap.org/?layers=N&mlat=-1.25&zoom=3&mlon=36.8", "-1.25", "36.8", true},
		{"osm hash", "https://www.openstreetmap.org/#map=15/59.3293/18.0686", "59.3293", "18.0686", true},
		{"osm hash no www", "https://openstreetmap.org/#map=12/-22.9/-43.2", "-22.9", "-43.2", true},
		{"google checked before apple", "https://maps.apple.com/?q=1.0,2.0 https://maps.google.com/maps?q=3.0,4.0", "3.0", "4.0", true},
		{"integers not matched", "https://maps.google.com/maps?q=59,18", "", "", false},
		{"plain text", "no map here", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ExtractCoordinates(tt.text)
			if ok != tt.ok || lat != tt.lat || lon != tt.lon {
				t.Fatalf("ExtractCoordinates(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.text, lat, lon, ok, tt.lat, tt.lon, tt.ok)
			}
		})
	}
}
