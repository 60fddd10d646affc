package perception

import (
	"errors"
	"time"
)

// ErrUnknownAffiliation is returned when decoding an unknown affiliation name.
var ErrUnknownAffiliation = errors.New("perception: unknown affiliation")

// Affiliation is how a candidate relates to the perceiving agent.
type Affiliation int

const (
	AffiliationEnemy Affiliation = iota
	AffiliationNeutral
	AffiliationFriendly
)

func (a Affiliation) String() string {
	switch a {
	case AffiliationEnemy:
		return "enemy"
	case AffiliationNeutral:
		return "neutral"
	case AffiliationFriendly:
		return "friendly"
	default:
		return "unknown"
	}
}

// ParseAffiliation maps a config/wire name to an Affiliation.
func ParseAffiliation(s string) (Affiliation, bool) {
	switch s {
	case "enemy":
		return AffiliationEnemy, true
	case "neutral":
		return AffiliationNeutral, true
	case "friendly":
		return AffiliationFriendly, true
	}
	return AffiliationNeutral, false
}

// MarshalText renders the affiliation by name on the wire.
func (a Affiliation) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts the names produced by MarshalText.
func (a *Affiliation) UnmarshalText(b []byte) error {
	v, ok := ParseAffiliation(string(b))
	if !ok {
		return ErrUnknownAffiliation
	}
	*a = v
	return nil
}

// TargetEligibility classifies an actor for targeting. It is attached to the
// actor record and resolved once when the candidate is detected.
type TargetEligibility int

const (
	EligibilityNone TargetEligibility = iota
	EligibilityHostilePlayer
)

// AffiliationFilter toggles detection per affiliation.
type AffiliationFilter struct {
	Enemies    bool `mapstructure:"enemies" json:"enemies"`
	Neutrals   bool `mapstructure:"neutrals" json:"neutrals"`
	Friendlies bool `mapstructure:"friendlies" json:"friendlies"`
}

// Allows reports whether a candidate of affiliation a may be evaluated.
func (f AffiliationFilter) Allows(a Affiliation) bool {
	switch a {
	case AffiliationEnemy:
		return f.Enemies
	case AffiliationNeutral:
		return f.Neutrals
	case AffiliationFriendly:
		return f.Friendlies
	}
	return false
}

// SightConfig configures a sight channel. LoseRadius must be at least Radius:
// tracked candidates are kept out to LoseRadius, new ones are acquired only
// inside Radius.
type SightConfig struct {
	Radius             float64           `mapstructure:"radius" json:"radius"`
	LoseRadius         float64           `mapstructure:"lose_radius" json:"lose_radius"`
	PeripheralAngleDeg float64           `mapstructure:"peripheral_angle_deg" json:"peripheral_angle_deg"`
	Filter             AffiliationFilter `mapstructure:"filter" json:"filter"`
	Dominant           bool              `mapstructure:"dominant" json:"dominant"`
}

// HearingConfig configures a hearing channel.
type HearingConfig struct {
	Range    float64           `mapstructure:"range" json:"range"`
	Filter   AffiliationFilter `mapstructure:"filter" json:"filter"`
	Dominant bool              `mapstructure:"dominant" json:"dominant"`
}

var (
	ErrInvalidSightRadius = errors.New("perception: sight radius must be positive")
	ErrInvalidLoseRadius  = errors.New("perception: lose sight radius must be >= sight radius")
	ErrInvalidPeripheral  = errors.New("perception: peripheral angle must be in (0, 180]")
	ErrInvalidHearing     = errors.New("perception: hearing range must be positive")
)

// DefaultSightConfig mirrors the stock zombie controller.
func DefaultSightConfig() SightConfig {
	return SightConfig{
		Radius:             2000,
		LoseRadius:         2500,
		PeripheralAngleDeg: 90,
		Filter:             AffiliationFilter{Enemies: true, Neutrals: true, Friendlies: true},
		Dominant:           true,
	}
}

// DefaultHearingConfig mirrors the stock zombie controller.
func DefaultHearingConfig() HearingConfig {
	return HearingConfig{
		Range:  3000,
		Filter: AffiliationFilter{Enemies: true, Neutrals: true},
	}
}

// Validate checks the radii and the cone angle.
func (c SightConfig) Validate() error {
	if c.Radius <= 0 {
		return ErrInvalidSightRadius
	}
	if c.LoseRadius < c.Radius {
		return ErrInvalidLoseRadius
	}
	if c.PeripheralAngleDeg <= 0 || c.PeripheralAngleDeg > 180 {
		return ErrInvalidPeripheral
	}
	return nil
}

// Validate checks the hearing range.
func (c HearingConfig) Validate() error {
	if c.Range <= 0 {
		return ErrInvalidHearing
	}
	return nil
}

// ---- Evaluation inputs ----

// Perceiver is the pose of the agent doing the sensing.
type Perceiver struct {
	ID       ActorID
	Position Vec3
	Forward  Vec3 // zero means no facing: the agent sees all around
}

// Candidate is a detectable actor as supplied by the world registry.
type Candidate struct {
	ID          ActorID
	Position    Vec3
	Affiliation Affiliation
	Eligibility TargetEligibility
}

// Noise is a sound reported into the world during the last pass.
type Noise struct {
	Source      ActorID // empty for ambient world noise
	Location    Vec3
	Loudness    float64 // scales the hearing range; <=0 means 1
	Tag         string
	Affiliation Affiliation
	At          time.Duration
}

// Visibility answers occlusion queries between two points.
type Visibility interface {
	Visible(from, to Vec3) bool
}

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func(from, to Vec3) bool

func (f VisibilityFunc) Visible(from, to Vec3) bool { return f(from, to) }

// clearView is used when no occlusion source is configured.
var clearView = VisibilityFunc(func(Vec3, Vec3) bool { return true })
