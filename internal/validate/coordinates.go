package validate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/echospot/echospot/internal/geo"
)

// Coordinate validation errors
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrOutOfRange        = errors.New("coordinate out of range")
)

// Latitude parses a decimal latitude and checks it lies in [-90, 90].
func Latitude(s string) (float64, error) {
	v, err := parseCoordinate(s)
	if err != nil {
		return 0, err
	}
	if !geo.ValidLatitude(v) {
		return 0, fmt.Errorf("%w: latitude %v not in [-90, 90]", ErrOutOfRange, v)
	}
	return v, nil
}

// Longitude parses a decimal longitude and checks it lies in [-180, 180].
func Longitude(s string) (float64, error) {
	v, err := parseCoordinate(s)
	if err != nil {
		return 0, err
	}
	if !geo.ValidLongitude(v) {
		return 0, fmt.Errorf("%w: longitude %v not in [-180, 180]", ErrOutOfRange, v)
	}
	return v, nil
}

func parseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidCoordinate, s)
	}
	return v, nil
}
