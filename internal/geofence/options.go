package geofence

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Default region parameters.
const (
	DefaultRadius         = 50
	DefaultLoiteringDelay = 10 // milliseconds

	// MaxExpirationMillis is the largest expirationDuration the platform
	// bridge reads; it takes the value as a 32-bit int.
	MaxExpirationMillis = math.MaxInt32
)

// Options is the caller-supplied region configuration. Optional fields are
// pointers so "absent" and "zero" stay distinct.
type Options struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Radius in metres. Defaults to Defaults.Radius.
	Radius *float64 `json:"radius,omitempty"`

	// ExpirationDuration in milliseconds. Absent means NeverExpire.
	ExpirationDuration *int64 `json:"expirationDuration,omitempty"`
}

// Defaults are applied to fields Options leaves unset.
type Defaults struct {
	Radius         float64
	LoiteringDelay int
}

// StandardDefaults returns radius 50 and loitering delay 10ms.
func StandardDefaults() Defaults {
	return Defaults{Radius: DefaultRadius, LoiteringDelay: DefaultLoiteringDelay}
}

// Definition validates the options and builds the immutable Definition the
// registry hands to the platform.
//
// Validation rules:
//   - id must be non-empty
//   - latitude in [-90, 90], longitude in [-180, 180]
//   - radius > 0 when given
//   - expiration in [1, MaxExpirationMillis] when given
//
// Returns:
//   - Definition: With defaults applied and transitions fixed to ENTER|EXIT
//   - error: *Error of kind InvalidArgument
func (o Options) Definition(d Defaults) (Definition, error) {
	if d.Radius <= 0 {
		d.Radius = DefaultRadius
	}

	var problems []string
	if strings.TrimSpace(o.ID) == "" {
		problems = append(problems, "id is required")
	}
	if o.Latitude < -90 || o.Latitude > 90 {
		problems = append(problems, fmt.Sprintf("latitude %v out of range [-90, 90]", o.Latitude))
	}
	if o.Longitude < -180 || o.Longitude > 180 {
		problems = append(problems, fmt.Sprintf("longitude %v out of range [-180, 180]", o.Longitude))
	}

	radius := d.Radius
	if o.Radius != nil {
		radius = *o.Radius
		if radius <= 0 {
			problems = append(problems, fmt.Sprintf("radius %v must be positive", radius))
		}
	}

	expiration := NeverExpire
	if o.ExpirationDuration != nil {
		switch ms := *o.ExpirationDuration; {
		case ms <= 0:
			problems = append(problems, fmt.Sprintf("expirationDuration %d must be positive", ms))
		case ms > MaxExpirationMillis:
			problems = append(problems, fmt.Sprintf("expirationDuration %d exceeds %d", ms, MaxExpirationMillis))
		default:
			expiration = time.Duration(ms) * time.Millisecond
		}
	}

	if len(problems) > 0 {
		return Definition{}, InvalidArgument(strings.Join(problems, "; "))
	}

	return Definition{
		ID:             o.ID,
		Latitude:       o.Latitude,
		Longitude:      o.Longitude,
		Radius:         float32(radius),
		Transitions:    DefaultTransitions,
		LoiteringDelay: d.LoiteringDelay,
		Expiration:     expiration,
	}, nil
}

// Definitions validates a batch, preserving order. The first invalid entry
// fails the whole batch and is named by index.
func Definitions(opts []Options, d Defaults) ([]Definition, error) {
	defs := make([]Definition, 0, len(opts))
	for i, o := range opts {
		def, err := o.Definition(d)
		if err != nil {
			return nil, InvalidArgument(fmt.Sprintf("geofence[%d]: %s", i, messageOf(err)))
		}
		defs = append(defs, def)
	}
	return defs, nil
}
