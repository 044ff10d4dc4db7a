package nlu

import (
	"regexp"
	"strings"
)

const CurrentLocation = "current location"

var directionsRe = regexp.MustCompile(`(?:navigate|directions|route)\s+(?:from\s+(.+?)\s+to\s+(.+)|to\s+(.+))`)

// NavigationRequest is an origin/destination pair heard in a transcript.
type NavigationRequest struct {
	Origin      string
	Destination string
}

// ParseDirections finds the first "navigate|directions|route [from X] to Y"
// in text. Without "from", the origin is the current location. Both
// places come back lower-cased with trailing punctuation removed.
func ParseDirections(text string) (NavigationRequest, bool) {
	m := directionsRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return NavigationRequest{}, false
	}

	if m[1] != "" && m[2] != "" {
		return NavigationRequest{Origin: clean(m[1]), Destination: clean(m[2])}, true
	}
	if m[3] != "" {
		return NavigationRequest{Origin: CurrentLocation, Destination: clean(m[3])}, true
	}

	return NavigationRequest{}, false
}

func clean(place string) string {
	return strings.TrimRight(strings.TrimSpace(place), " .!?")
}
