package models

// ModelTier is the closed set of agent model tiers the selector picks from.
type ModelTier string

const (
	TierCheap   ModelTier = "cheap"
	TierMid     ModelTier = "mid"
	TierPremium ModelTier = "premium"
)

// Valid reports whether t is one of the known tiers.
func (t ModelTier) Valid() bool {
	switch t {
	case TierCheap, TierMid, TierPremium:
		return true
	}
	return false
}

// Upgrade returns the next tier up, capped at premium.
func (t ModelTier) Upgrade() ModelTier {
	switch t {
	case TierCheap:
		return TierMid
	case TierMid:
		return TierPremium
	}
	return TierPremium
}

// Downgrade returns the next tier down, capped at cheap.
func (t ModelTier) Downgrade() ModelTier {
	switch t {
	case TierPremium:
		return TierMid
	case TierMid:
		return TierCheap
	}
	return TierCheap
}

// ParseTier returns the tier for s, or ok=false for unknown values.
func ParseTier(s string) (ModelTier, bool) {
	t := ModelTier(s)
	return t, t.Valid()
}
