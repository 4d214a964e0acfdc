package model

import (
	"slices"
	"strings"
)

// Environment selects which platform catalog ids are in effect
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

// ParseEnvironment maps a config value to an Environment, defaulting to development
func ParseEnvironment(s string) Environment {
	if strings.EqualFold(s, string(EnvironmentProduction)) {
		return EnvironmentProduction
	}
	return EnvironmentDevelopment
}

// Catalog names the badges, game passes and products a shard knows about.
// Keys are stable names used by feature code; values are platform ids.
type Catalog struct {
	Badges     map[string]BadgeID
	GamePasses map[string]GamePassID
	Products   map[string]ProductID
}

// Names used by feature code to look up catalog ids
const (
	BadgeWelcome    = "Welcome"
	GamePassExample = "Example"
	ProductExample  = "Example"
)

// CatalogFor returns the catalog ids for an environment
func CatalogFor(env Environment) Catalog {
	if env == EnvironmentProduction {
		return Catalog{
			Badges:     map[string]BadgeID{BadgeWelcome: "2"},
			GamePasses: map[string]GamePassID{GamePassExample: "2"},
			Products:   map[string]ProductID{ProductExample: "4"},
		}
	}
	return Catalog{
		Badges:     map[string]BadgeID{BadgeWelcome: "1"},
		GamePasses: map[string]GamePassID{GamePassExample: "1"},
		Products:   map[string]ProductID{ProductExample: "3"},
	}
}

// GamePassIDs returns every game pass id in a stable order
func (c Catalog) GamePassIDs() []GamePassID {
	ids := make([]GamePassID, 0, len(c.GamePasses))
	for _, id := range c.GamePasses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ProductIDs returns every product id in a stable order
func (c Catalog) ProductIDs() []ProductID {
	ids := make([]ProductID, 0, len(c.Products))
	for _, id := range c.Products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasGamePass reports whether id is a known game pass
func (c Catalog) HasGamePass(id GamePassID) bool {
	for _, v := range c.GamePasses {
		if v == id {
			return true
		}
	}
	return false
}

// HasProduct reports whether id is a known product
func (c Catalog) HasProduct(id ProductID) bool {
	for _, v := range c.Products {
		if v == id {
			return true
		}
	}
	return false
}
