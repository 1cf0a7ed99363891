// Package server exposes a read-only HTTP API over the analysis results.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

// Server serves zones, classifications, and summary counts.
type Server struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Server over the given store.
func New(st store.Store) *Server {
	return &Server{
		store: st,
		log:   zap.L().With(zap.String("component", "server")),
	}
}

// Handler builds the route tree.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/zones/current", s.handleCurrentZones)
		r.Get("/zones/history", s.handleZoneHistory)
		r.Get("/classifications", s.handleClassifications)
		r.Get("/summary", s.handleSummary)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.CheckZoneConsistency(r.Context()); err != nil {
		status = err.Error()
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

// handleCurrentZones returns the live zone batch as a GeoJSON
// FeatureCollection.
func (s *Server) handleCurrentZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.CurrentZones(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	features := make([]json.RawMessage, 0, len(zones))
	for _, z := range zones {
		f, err := zoneFeature(z)
		if err != nil {
			s.writeError(w, err)
			return
		}
		features = append(features, f)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
}

func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ZoneHistory(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if batches == nil {
		batches = []store.ZoneBatch{}
	}
	s.writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleClassifications(w http.ResponseWriter, r *http.Request) {
	classifications, err := s.store.ListClassifications(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if classifications == nil {
		classifications = []model.Classification{}
	}
	s.writeJSON(w, http.StatusOK, classifications)
}

// handleSummary tallies stored classifications by type.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	classifications, err := s.store.ListClassifications(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	var sum model.Summary
	sum.Total = len(classifications)
	for _, c := range classifications {
		switch c.Type {
		case model.TypeOriginator:
			sum.Originators++
		case model.TypeRepeat:
			sum.Repeats++
		case model.TypeNearRepeat:
			sum.NearRepeats++
		}
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// zoneFeature renders one zone as a GeoJSON feature.
func zoneFeature(z model.Zone) (json.RawMessage, error) {
	var geometry json.RawMessage
	if z.Geometry != nil {
		g, err := geojson.Marshal(z.Geometry)
		if err != nil {
			return nil, err
		}
		geometry = g
	} else {
		geometry = json.RawMessage("null")
	}

	return json.Marshal(map[string]any{
		"type":     "Feature",
		"geometry": geometry,
		"properties": map[string]any{
			"zone_id":     z.ID,
			"batch_id":    z.BatchID,
			"class":       z.Class,
			"class_count": z.ClassCount,
			"value_min":   z.ValueMin,
			"value_max":   z.ValueMax,
			"status":      string(z.Status),
			"created_at":  z.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
