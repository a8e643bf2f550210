package geo

import (
	"math"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// EarthRadiusMetres is the mean earth radius.
const EarthRadiusMetres = 6371008.7714

// ToMetres converts a distance expressed in unit to metres.
func ToMetres(d float64, unit rdf.IRI) (float64, error) {
	switch unit {
	case rdf.UOMMetre:
		return d, nil
	case rdf.UOMRadian:
		return d * EarthRadiusMetres, nil
	case rdf.UOMDegree:
		return d * math.Pi / 180 * EarthRadiusMetres, nil
	default:
		return 0, errors.New(errors.ErrCodeUnsupportedUnit, "unsupported unit of measure: "+string(unit), nil)
	}
}

// FromMetres converts metres into unit.
func FromMetres(m float64, unit rdf.IRI) (float64, error) {
	f, err := ToMetres(1, unit)
	if err != nil {
		return 0, err
	}
	return m / f, nil
}

// UnitSymbol returns the short symbol used in log messages.
func UnitSymbol(unit rdf.IRI) string {
	switch unit {
	case rdf.UOMMetre:
		return "m"
	case rdf.UOMRadian:
		return "rad"
	case rdf.UOMDegree:
		return "°"
	default:
		return ""
	}
}
