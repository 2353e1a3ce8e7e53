package transport

import (
	"encoding/json"
	"net/http"

	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/supervisor"
)

// StatusProvider is satisfied by *supervisor.Supervisor; kept as its
// own interface so this file only depends on the two read methods it
// actually needs.
type StatusProvider interface {
	Status() supervisor.Status
	Schema() []module.Schema
}

// NewStatusHandler serves GET /status and GET /schema as JSON,
// standing in for the OSC reply go-osc's Dispatcher has no way to
// produce (it never exposes the sender's return address to a handler).
func NewStatusHandler(provider StatusProvider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, provider.Status())
	})
	mux.HandleFunc("/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, provider.Schema())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
