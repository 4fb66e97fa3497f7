package valueobject

// ModelTier selects which inference model and token budget a bill's
// extraction request uses.
type ModelTier string

// Model tier constants.
const (
	TierSmall ModelTier = "small"
	TierLarge ModelTier = "large"
)

// TierForBodyLength chooses the tier for a bill body. Bodies shorter than
// the threshold use the small tier; bodies at or above it use the large
// tier.
func TierForBodyLength(length, threshold int) ModelTier {
	if length < threshold {
		return TierSmall
	}
	return TierLarge
}

// String returns the string representation of the tier.
func (t ModelTier) String() string {
	return string(t)
}
