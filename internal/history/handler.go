package history

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler serves stored transcripts:
//
//	GET <prefix>            — list session ids
//	GET <prefix><sessionID> — one session's transcript lines
func Handler(store *Store, prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if sessionID == "" {
			ids, err := store.Sessions(r.Context())
			if err != nil {
				http.Error(w, "failed to list sessions", http.StatusInternalServerError)
				return
			}
			if ids == nil {
				ids = []string{}
			}
			writeJSON(w, map[string]any{"sessions": ids})
			return
		}

		entries, err := store.BySession(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "failed to load transcript", http.StatusInternalServerError)
			return
		}
		if len(entries) == 0 {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"entries": entries})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
