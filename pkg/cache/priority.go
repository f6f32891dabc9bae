package cache

import "time"

// Category classifies what kind of data an entry holds. The category is
// attached explicitly at call time; priority is never inferred from the key
// string itself.
type Category string

const (
	// CategoryPreference holds user settings; evicted last.
	CategoryPreference Category = "preference"

	// CategoryAPOD holds astronomy-picture-of-the-day records.
	CategoryAPOD Category = "apod"

	// CategoryNEO holds near-Earth-object feed data.
	CategoryNEO Category = "neo"

	// CategoryDONKI holds space-weather event notifications.
	CategoryDONKI Category = "donki"

	// CategoryMarsWeather holds Mars weather service reports.
	CategoryMarsWeather Category = "mars-weather"

	// CategoryRoverPhotos holds rover photo manifests and page results.
	CategoryRoverPhotos Category = "rover-photos"

	// CategoryExoplanet holds exoplanet archive query results.
	CategoryExoplanet Category = "exoplanet"

	// CategoryDataset holds large derived datasets; evicted first.
	CategoryDataset Category = "dataset"
)

// DefaultPriority is the baseline for entries whose category is unknown.
const DefaultPriority = 25

// categoryProfile fixes the retention priority and default TTL for one
// data category.
type categoryProfile struct {
	Category Category
	Priority int
	TTL      time.Duration
}

// categoryProfiles is the ordered priority table. First match wins; the
// order is part of the contract, most-retained first.
var categoryProfiles = []categoryProfile{
	{CategoryPreference, 100, 30 * 24 * time.Hour},
	{CategoryAPOD, 80, 24 * time.Hour},
	{CategoryNEO, 60, time.Hour},
	{CategoryDONKI, 50, 30 * time.Minute},
	{CategoryMarsWeather, 40, time.Hour},
	{CategoryRoverPhotos, 30, 6 * time.Hour},
	{CategoryExoplanet, 20, 24 * time.Hour},
	{CategoryDataset, 10, time.Hour},
}

// PriorityFor returns the retention priority for a category, or
// DefaultPriority when the category is not in the table.
func PriorityFor(category Category) int {
	for _, p := range categoryProfiles {
		if p.Category == category {
			return p.Priority
		}
	}
	return DefaultPriority
}

// DefaultTTLFor returns the default TTL for a category.
// Falls back to one hour for unknown categories.
func DefaultTTLFor(category Category) time.Duration {
	for _, p := range categoryProfiles {
		if p.Category == category {
			return p.TTL
		}
	}
	return time.Hour
}
