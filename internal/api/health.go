package api

import (
	"net/http"
	"time"

	"github.com/agenciamidas/capi-gateway/internal/domain"
)

type pixelHealth struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	HasCapability bool   `json:"has_capability"`
}

// HealthHandler reports liveness plus the configured destination set, tokens
// excluded.
func HealthHandler(pixels []domain.Pixel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]pixelHealth, len(pixels))
		for i, p := range pixels {
			out[i] = pixelHealth{
				ID:            p.ID,
				Name:          p.DisplayName(),
				HasCapability: p.FluxlabsEnabled,
			}
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"ok":                true,
			"ts":                time.Now().UnixMilli(),
			"pixels_configured": len(pixels),
			"pixels":            out,
		})
	}
}
