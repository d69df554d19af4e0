package handlers

import (
	"net/http"
	"sort"
	"time"
)

// Status reports uptime, run counters and the sessions currently in flight.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	entries := a.Sessions.Snapshot()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Since.Before(entries[j].Since) })
	active := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		active = append(active, map[string]any{
			"user_id": e.Key,
			"since":   e.Since.UTC().Format(time.RFC3339),
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(a.StartedAt).Seconds()),
		"runs": map[string]int64{
			"started":   a.Stats.Started.Load(),
			"succeeded": a.Stats.Succeeded.Load(),
			"failed":    a.Stats.Failed.Load(),
		},
		"active_sessions": active,
	})
}
