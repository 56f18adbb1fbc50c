package domain

import (
	"strings"
)

// Category is one entry of the closed spending taxonomy.
type Category string

const (
	CategoryMeal          Category = "Meal"
	CategorySupplies      Category = "Supplies"
	CategoryHotel         Category = "Hotel"
	CategoryFuelEnergy    Category = "Fuel & Energy"
	CategoryTransport     Category = "Transportation"
	CategoryCommunication Category = "Communication & Subscriptions"
	CategoryEntertainment Category = "Entertainment"
	CategoryTraining      Category = "Training"
	CategoryHealthcare    Category = "Healthcare"
	CategoryOther         Category = "Other"
)

// Categories lists the taxonomy in display order. Other is always last.
var Categories = []Category{
	CategoryMeal,
	CategorySupplies,
	CategoryHotel,
	CategoryFuelEnergy,
	CategoryTransport,
	CategoryCommunication,
	CategoryEntertainment,
	CategoryTraining,
	CategoryHealthcare,
	CategoryOther,
}

// categoryDelimiter splits compound labels such as "meal.sub-category".
const categoryDelimiter = "."

var categoryIndex = func() map[string]Category {
	m := make(map[string]Category, len(Categories))
	for _, c := range Categories {
		m[strings.ToUpper(string(c))] = c
	}
	return m
}()

// NormalizeCategory maps an arbitrary label onto the taxonomy.
// Only the prefix before the first "." of a compound label is matched, the
// comparison is case-insensitive, and anything unmatched becomes Other.
func NormalizeCategory(raw string) Category {
	label := strings.TrimSpace(raw)
	if prefix, _, found := strings.Cut(label, categoryDelimiter); found {
		label = strings.TrimSpace(prefix)
	}
	if label == "" {
		return CategoryOther
	}
	if c, ok := categoryIndex[strings.ToUpper(label)]; ok {
		return c
	}
	return CategoryOther
}

// IsValid reports whether c is a member of the taxonomy as stored.
func (c Category) IsValid() bool {
	stored, ok := categoryIndex[strings.ToUpper(string(c))]
	return ok && stored == c
}

func (c Category) String() string {
	return string(c)
}
