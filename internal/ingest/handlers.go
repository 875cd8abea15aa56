package ingest

import (
	"errors"
	"net/http"

	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/store"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

type healthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	At      string `json:"at"`
}

type ingestResponse struct {
	OK            bool   `json:"ok"`
	SyncedAt      string `json:"syncedAt"`
	MealsReceived int    `json:"mealsReceived"`
}

type summaryResponse struct {
	*models.HealthSummary
	Source string `json:"source"`
}

// mealResponse reports the meal's provider as its source.
type mealResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CarbsGrams float64  `json:"carbsGrams"`
	EatenAt    string   `json:"eatenAt"`
	Source     string   `json:"source"`
	Calories   *float64 `json:"calories,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, healthResponse{
		OK:      true,
		Service: ServiceName,
		At:      s.now().UTC().Format(isoMillis),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p ingestPayload
	if err := DecodeJSON(w, r, &p); err != nil {
		s.Error(w, r, err)
		return
	}

	batch, err := s.validator.batch(&p)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	if err := s.Store.SaveSync(r.Context(), batch); err != nil {
		s.Error(w, r, err)
		return
	}

	s.Logger.Info("health connect sync stored",
		"device_id", batch.DeviceID,
		"meals", len(batch.Meals),
		"request_id", GetRequestID(r.Context()),
	)
	JSON(w, http.StatusOK, ingestResponse{
		OK:            true,
		SyncedAt:      batch.SyncedAt.Format(isoMillis),
		MealsReceived: len(batch.Meals),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Store.LatestSummary(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		s.Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, summaryResponse{HealthSummary: summary, Source: models.ProviderHealthConnect})
}

func (s *Server) handleMeals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q, err := parseMealsQuery(query.Get("from"), query.Get("to"), query.Get("limit"), s.now())
	if err != nil {
		s.Error(w, r, err)
		return
	}

	meals, err := s.Store.ListMeals(r.Context(), q)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	out := make([]mealResponse, 0, len(meals))
	for _, m := range meals {
		out = append(out, mealResponse{
			ID:         m.ID,
			Name:       m.Name,
			CarbsGrams: m.CarbsGrams,
			EatenAt:    m.EatenAt,
			Source:     m.Provider,
			Calories:   m.Calories,
		})
	}
	JSON(w, http.StatusOK, out)
}
