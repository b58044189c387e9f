package stationboard

// Station is a monitored unit shown on the dashboard.
//
// The station list is configuration data: it fixes which ids start at
// [StatusInactive] and the order and display names used by the dashboard.
// Events for ids outside the list are still tracked.
type Station struct {
	// ID is the identifier carried as stationId on the wire.
	ID string

	// Name is a human-readable display name.
	Name string
}

// DefaultStations returns the stock five-station layout.
func DefaultStations() []Station {
	return []Station{
		{ID: "1", Name: "Main Station"},
		{ID: "2", Name: "Secondary Station"},
		{ID: "3", Name: "Backup Station"},
		{ID: "4", Name: "Remote Station"},
		{ID: "5", Name: "Mobile Station"},
	}
}

func stationIDs(stations []Station) []string {
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}
	return ids
}
