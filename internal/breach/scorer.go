package breach

import "math/rand/v2"

// Rand is the source of score randomness. It is injectable so tests can
// pin the sequence; the zero dependency is the shared math/rand/v2 source.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Scorer maps a risk tier to a numeric score and a recommendation list.
//
// Scores are drawn fresh on every call, but always inside the tier's band:
// LOW [0,39], MEDIUM [40,79], HIGH [80,100]. The randomization is
// deliberate; it tells the caller "severity band", not an exact measured
// value. Recommendation text is deterministic given tier and zone kind.
type Scorer struct {
	rng Rand
}

// NewScorer creates a Scorer. A nil rng falls back to the shared source.
func NewScorer(rng Rand) *Scorer {
	if rng == nil {
		rng = globalRand{}
	}
	return &Scorer{rng: rng}
}

// Score returns a score within the tier's band.
func (s *Scorer) Score(tier RiskTier) int {
	lo, hi := tier.ScoreBand()
	return lo + s.rng.IntN(hi-lo+1)
}

// Recommendations returns the safety guidance for a tier and zone kind.
// RESTRICTED zones always append an access notice regardless of tier.
func (s *Scorer) Recommendations(tier RiskTier, kind ZoneKind) []string {
	var recs []string
	switch tier {
	case TierHigh:
		recs = []string{
			"Leave the area immediately",
			"Move toward the nearest safe zone",
			"Contact emergency services if you feel threatened",
			"Share your live location with a trusted contact",
		}
	case TierMedium:
		recs = []string{
			"Stay alert and aware of your surroundings",
			"Avoid isolated or poorly lit spots",
			"Keep your phone charged and within reach",
		}
	default:
		recs = []string{
			"Continue as normal and keep baseline precautions",
		}
	}

	if kind == KindRestricted {
		recs = append(recs, "This is a restricted area; leave unless you have explicit authorization")
	}
	return recs
}
