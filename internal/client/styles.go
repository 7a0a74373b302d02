package client

import (
	"slices"

	"github.com/samber/lo"
)

// Style is a named landscaping look appended to the user's prompt.
type Style struct {
	ID             string
	Name           string
	PromptModifier string
}

// DefaultStyle is used when no style is chosen.
const DefaultStyle = "modern"

// Styles is the catalog offered to users, keyed by ID.
var Styles = map[string]Style{
	"modern": {
		ID:             "modern",
		Name:           "Modern Minimalist",
		PromptModifier: "Modern minimalist garden, clean geometry, concrete pavers, structured planting, neutral tones",
	},
	"tropical": {
		ID:             "tropical",
		Name:           "Tropical Resort",
		PromptModifier: "Tropical resort garden, lush greenery, palms, timber decking, vibrant planting",
	},
	"rustic": {
		ID:             "rustic",
		Name:           "Rustic Cottage",
		PromptModifier: "Rustic cottage garden, natural stone, wildflowers, winding paths, cozy atmosphere",
	},
	"entertainment": {
		ID:             "entertainment",
		Name:           "Entertainer",
		PromptModifier: "Outdoor entertaining space, large patio, BBQ area, fire pit, seating zones",
	},
}

// StyleIDs returns the catalog IDs in sorted order.
func StyleIDs() []string {
	ids := lo.Keys(Styles)
	slices.Sort(ids)
	return ids
}

// LookupStyle returns the style for id. An empty id selects DefaultStyle.
func LookupStyle(id string) (Style, bool) {
	if id == "" {
		id = DefaultStyle
	}
	s, ok := Styles[id]
	return s, ok
}
