package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ConfigHandler serves GET and POST of the runtime configuration stored in
// cfile. A successful POST rewrites the file; the Watcher picks the change
// up from there.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getConfigHandler(w, cfile)
		case http.MethodPost:
			setConfigHandler(w, r, cfile)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func getConfigHandler(w http.ResponseWriter, cfile string) {
	slog.Debug("ConfigHandler: GET /api/config")
	// Read on every request, the file may have been edited by hand.
	fullConfig, err := ReadConfig(cfile, false)
	if err != nil {
		slog.Error("ConfigHandler: failed to read config file", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fullConfig.Runtime()); err != nil {
		slog.Error("ConfigHandler: failed to encode runtime config", "error", err)
	}
}

func setConfigHandler(w http.ResponseWriter, r *http.Request, cfile string) {
	slog.Info("ConfigHandler: POST /api/config")
	defer r.Body.Close()

	var rc RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		slog.Warn("ConfigHandler: invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Database, API and logging settings are kept from disk.
	fullConfig, err := ReadConfig(cfile, false)
	if err != nil {
		slog.Error("ConfigHandler: failed to read config file", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	fullConfig.SetRuntime(rc)

	if err := fullConfig.Validate(); err != nil {
		slog.Warn("ConfigHandler: rejected runtime config", "error", err)
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	if err := WriteConfig(cfile, fullConfig); err != nil {
		slog.Error("ConfigHandler: failed to save config", "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("ConfigHandler: config file updated, reload follows")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Configuration updated successfully.")
}
