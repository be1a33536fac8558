package powder

import (
	"math"
	"strings"
)

// Group is a material group with its own regression model.
type Group string

const (
	GroupTitanium       Group = "ti"
	GroupStainlessSteel Group = "ss"
	GroupAluminum       Group = "al"

	// GroupAuto is an input-side choice only; it never reaches routing.
	GroupAuto Group = "auto"
)

// Bulk density thresholds (g/cm³) used by auto detection.
const (
	autoTitaniumMin       = 3.5
	autoStainlessSteelMin = 6.0
)

// Groups lists the routable groups in display order.
func Groups() []Group {
	return []Group{GroupTitanium, GroupStainlessSteel, GroupAluminum}
}

// Valid reports whether g is one of the routable groups.
func (g Group) Valid() bool {
	switch g {
	case GroupTitanium, GroupStainlessSteel, GroupAluminum:
		return true
	}
	return false
}

// Code is the upper-case short code used in reports ("TI", "SS", "AL").
func (g Group) Code() string { return strings.ToUpper(string(g)) }

func (g Group) Name() string {
	switch g {
	case GroupTitanium:
		return "Titanium"
	case GroupStainlessSteel:
		return "Stainless Steel"
	case GroupAluminum:
		return "Aluminum"
	case GroupAuto:
		return "Auto"
	}
	return string(g)
}

var explicitChoices = map[string]Group{
	"ti":              GroupTitanium,
	"titanium":        GroupTitanium,
	"ss":              GroupStainlessSteel,
	"stainlesssteel":  GroupStainlessSteel,
	"stainless steel": GroupStainlessSteel,
	"stainless_steel": GroupStainlessSteel,
	"al":              GroupAluminum,
	"aluminum":        GroupAluminum,
	"aluminium":       GroupAluminum,
}

func isAutoChoice(choice string) bool {
	return choice == "" || choice == "auto" || strings.HasPrefix(choice, "auto ")
}

// ResolveMaterial turns the user's material choice into a routable group.
// Auto picks the group from bulk density: [0,3.5) aluminum, [3.5,6) titanium,
// [6,∞) stainless steel.
func ResolveMaterial(choice string, bulkDensity float64) (Group, error) {
	c := strings.ToLower(strings.TrimSpace(choice))
	if isAutoChoice(c) {
		if math.IsNaN(bulkDensity) || math.IsInf(bulkDensity, 0) || bulkDensity < 0 {
			return "", &InputError{Field: "bulk_density", Reason: "must be a finite value >= 0 for auto detection"}
		}
		switch {
		case bulkDensity < autoTitaniumMin:
			return GroupAluminum, nil
		case bulkDensity < autoStainlessSteelMin:
			return GroupTitanium, nil
		default:
			return GroupStainlessSteel, nil
		}
	}
	if g, ok := explicitChoices[c]; ok {
		return g, nil
	}
	return "", &RoutingError{Material: choice}
}

// genericTerms are dropped from batch labels before matching; "alloy"
// names no group and would otherwise match "al".
var genericTerms = strings.NewReplacer("alloys", " ", "alloy", " ")

// ClassifyMaterial routes a free-text material label from a batch file.
// Checks run in a fixed order and the first hit wins, so "Ti-6Al-4V" is
// titanium even though it also contains "al".
func ClassifyMaterial(text string) (Group, error) {
	m := genericTerms.Replace(strings.ToLower(text))
	switch {
	case strings.Contains(m, "ti"):
		return GroupTitanium, nil
	case strings.Contains(m, "ss"), strings.Contains(m, "316"):
		return GroupStainlessSteel, nil
	case strings.Contains(m, "al"):
		return GroupAluminum, nil
	}
	return "", &RoutingError{Material: text}
}

var confidence = map[Group]string{
	GroupTitanium:       "High",
	GroupStainlessSteel: "Moderate",
	GroupAluminum:       "Low",
}

// Confidence returns the fixed confidence label attached to a group's model.
func Confidence(g Group) string {
	if c, ok := confidence[g]; ok {
		return c
	}
	return "Unknown"
}
