package swapi

import (
	"errors"
	"fmt"
	"strings"
)

// Category is one of the six searchable SWAPI resources.
type Category string

const (
	People    Category = "people"
	Films     Category = "films"
	Starships Category = "starships"
	Vehicles  Category = "vehicles"
	Species   Category = "species"
	Planets   Category = "planets"
)

// Categories lists every category in display order.
var Categories = []Category{People, Films, Starships, Vehicles, Species, Planets}

// resourcePaths maps a category to its SWAPI collection path.
var resourcePaths = map[Category]string{
	People:    "/people/",
	Films:     "/films/",
	Starships: "/starships/",
	Vehicles:  "/vehicles/",
	Species:   "/species/",
	Planets:   "/planets/",
}

// ErrInvalidCategory is returned by ParseCategory for unknown names.
var ErrInvalidCategory = errors.New("invalid category")

// ParseCategory validates a category name (case-sensitive, as in the URL).
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := resourcePaths[c]; !ok {
		return "", fmt.Errorf("%w %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// ValidCategoriesMessage is the client-facing hint listing the accepted names.
func ValidCategoriesMessage() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return "Invalid category. Valid categories are: " + strings.Join(names, ", ")
}

func (c Category) String() string { return string(c) }
