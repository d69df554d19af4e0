package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"toonbot/internal/pipeline"
	"toonbot/internal/session"
)

// App bundles the read-only bot state the ops endpoints expose.
type App struct {
	Sessions  *session.Registry[int64]
	Stats     *pipeline.Stats
	StartedAt time.Time
}

func NewApp(sessions *session.Registry[int64], stats *pipeline.Stats) *App {
	return &App{Sessions: sessions, Stats: stats, StartedAt: time.Now()}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
