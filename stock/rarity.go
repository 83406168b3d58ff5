// Package stock turns a rendered stock page into classified sightings.
//
// The pipeline: rendered HTML → Extract (ordered raw entries) → ParseRarity
// (normalized tier) → Classifier (baseline filter + alert decision).
package stock

import (
	"errors"
	"fmt"
	"strings"
)

// Rarity is a normalized rarity tier as displayed by the stock page.
type Rarity string

const (
	Common    Rarity = "Common"
	Uncommon  Rarity = "Uncommon"
	Rare      Rarity = "Rare"
	Legendary Rarity = "Legendary"
	Mythical  Rarity = "Mythical"
)

// Baseline is the tier that is never persisted nor alerted on.
const Baseline = Common

// Tiers lists the known vocabulary, rarest last.
var Tiers = []Rarity{Common, Uncommon, Rare, Legendary, Mythical}

const (
	rarityDelimiter = "--"
	// decorativeSuffix is appended to the label span class for outlined text.
	decorativeSuffix = "Outline-B"
)

// ErrUnrecognizedRarity is returned (wrapped in a *RarityError) when a label
// does not resolve to a known tier.
var ErrUnrecognizedRarity = errors.New("stock: unrecognized rarity")

// RarityError carries the raw label that failed to parse.
type RarityError struct {
	Label  string
	Reason string
}

func (e *RarityError) Error() string {
	return fmt.Sprintf("stock: unrecognized rarity label %q: %s", e.Label, e.Reason)
}

func (e *RarityError) Unwrap() error { return ErrUnrecognizedRarity }

// ParseRarity normalizes a raw class-attribute label into a Rarity.
//
//	"mw-customcollapsible--Legendary) Outline-B" → Legendary
//	"mw-customcollapsible--Mythical)"            → Mythical
func ParseRarity(label string) (Rarity, error) {
	idx := strings.LastIndex(label, rarityDelimiter)
	if idx < 0 {
		return "", &RarityError{Label: label, Reason: "missing " + rarityDelimiter + " delimiter"}
	}
	tail := label[idx+len(rarityDelimiter):]

	fields := strings.Fields(strings.ReplaceAll(tail, ")", " "))
	var token string
	for _, f := range fields {
		if f == decorativeSuffix {
			continue
		}
		if token != "" {
			return "", &RarityError{Label: label, Reason: "ambiguous tier token"}
		}
		token = f
	}
	if token == "" {
		return "", &RarityError{Label: label, Reason: "empty tier token"}
	}

	if t, ok := LookupTier(token); ok {
		return t, nil
	}
	return "", &RarityError{Label: label, Reason: fmt.Sprintf("unknown tier %q", token)}
}

// LookupTier matches an exact tier name. Matching is case-sensitive.
func LookupTier(name string) (Rarity, bool) {
	for _, t := range Tiers {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// Upper is the shouting form used in alert messages.
func (r Rarity) Upper() string { return strings.ToUpper(string(r)) }
