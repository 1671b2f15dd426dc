package domain

// Progress is a point-in-time snapshot of one download, served by the
// status API and rendered by the CLI.
type Progress struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	TotalBytes   int64            `json:"total_bytes"`
	BytesWritten int64            `json:"bytes_written"`
	Speed        int64            `json:"speed"`
	Connections  map[string]int64 `json:"connections"`
	Finished     bool             `json:"finished"`
}

// Snapshot assembles a Progress from the group's current state.
func (g *RequestGroup) Snapshot() Progress {
	return Progress{
		ID:           g.ID,
		Name:         g.Name,
		TotalBytes:   g.totalLength,
		BytesWritten: g.registry.TotalWritten(),
		Speed:        g.registry.AggregateSpeed(),
		Connections:  g.registry.Speeds(),
		Finished:     g.registry.AllComplete(),
	}
}
