package stock

import "slices"

// Decision is what the classifier did with an entry.
type Decision int

const (
	Retain Decision = iota
	DropBaseline
	DropUnrecognized
)

func (d Decision) String() string {
	switch d {
	case Retain:
		return "retain"
	case DropBaseline:
		return "drop_baseline"
	case DropUnrecognized:
		return "drop_unrecognized"
	}
	return "unknown"
}

// Sighting is a retained entry with its normalized tier.
type Sighting struct {
	Name        string
	Rarity      Rarity
	AlertWorthy bool
}

// Default alert targeting.
var (
	DefaultHighTiers = []Rarity{Mythical, Legendary}
	DefaultTargets   = []string{"Tiger", "Control", "Kitsune", "Dragon", "Gravity", "Lightning"}
)

// Classifier filters the baseline tier and decides alert-worthiness.
type Classifier struct {
	highTiers []Rarity
	targets   []string
}

// NewClassifier builds a Classifier. Nil slices fall back to the defaults;
// an empty non-nil slice disables that alert condition.
func NewClassifier(highTiers []Rarity, targets []string) *Classifier {
	if highTiers == nil {
		highTiers = DefaultHighTiers
	}
	if targets == nil {
		targets = DefaultTargets
	}
	return &Classifier{
		highTiers: slices.Clone(highTiers),
		targets:   slices.Clone(targets),
	}
}

// Classify normalizes the entry's label. Baseline entries are dropped before
// alert evaluation, so a target name at the baseline tier is neither
// persisted nor alerted. The returned error is non-nil only for
// DropUnrecognized.
func (c *Classifier) Classify(e Entry) (Sighting, Decision, error) {
	rarity, err := ParseRarity(e.RarityLabel)
	if err != nil {
		return Sighting{}, DropUnrecognized, err
	}
	if rarity == Baseline {
		return Sighting{Name: e.Name, Rarity: rarity}, DropBaseline, nil
	}

	return Sighting{
		Name:        e.Name,
		Rarity:      rarity,
		AlertWorthy: slices.Contains(c.highTiers, rarity) || slices.Contains(c.targets, e.Name),
	}, Retain, nil
}
