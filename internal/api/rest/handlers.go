package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/store"
	"github.com/fortuna/moneta/internal/workbook"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "moneta"
	serviceVersion = "1.0.0"
)

// ObservationArchive reads archived observations
type ObservationArchive interface {
	GetByGame(ctx context.Context, gameID string) ([]*store.ObservationRecord, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	workbookPath string
	archive      ObservationArchive
	logger       *logrus.Logger
}

// NewHandler creates a new handler
func NewHandler(workbookPath string, archive ObservationArchive, logger *logrus.Logger) *Handler {
	return &Handler{
		workbookPath: workbookPath,
		archive:      archive,
		logger:       logger,
	}
}

// GameSummary is one region of a sheet without its entries
type GameSummary struct {
	GameID    string `json:"game_id"`
	Away      string `json:"away"`
	Home      string `json:"home"`
	StartTime string `json:"start_time,omitempty"`
	URL       string `json:"url,omitempty"`
	Column    int    `json:"column"`
	IsFinal   bool   `json:"is_final"`
	Entries   int    `json:"entries"`
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// GetSheets lists the dates that have a sheet
func (h *Handler) GetSheets(w http.ResponseWriter, r *http.Request) {
	reader, err := workbook.OpenReader(h.workbookPath, h.logger)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to open workbook", err)
		return
	}
	defer reader.Close()

	dates := reader.Dates()
	if dates == nil {
		dates = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dates": dates,
		"count": len(dates),
	})
}

// GetSheetGames returns every game of one date in column order
func (h *Handler) GetSheetGames(w http.ResponseWriter, r *http.Request) {
	regions, ok := h.loadRegions(w, r)
	if !ok {
		return
	}

	games := make([]GameSummary, 0, len(regions))
	for id, region := range regions {
		games = append(games, GameSummary{
			GameID:    id,
			Away:      region.Game.Away,
			Home:      region.Game.Home,
			StartTime: region.Game.StartTime,
			URL:       region.URL,
			Column:    region.Column,
			IsFinal:   region.IsFinal,
			Entries:   len(region.Entries),
		})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Column < games[j].Column })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":  mux.Vars(r)["date"],
		"games": games,
		"count": len(games),
	})
}

// GetSheetGame returns one game's region with all entries
func (h *Handler) GetSheetGame(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]
	if _, _, _, err := game.ParseID(gameID); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid game ID", err)
		return
	}

	regions, ok := h.loadRegions(w, r)
	if !ok {
		return
	}

	region, found := regions[gameID]
	if !found {
		respondError(w, http.StatusNotFound, "Game not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, region)
}

// GetGameObservations returns a game's archived observations
func (h *Handler) GetGameObservations(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "Observation archive not configured", nil)
		return
	}

	gameID := mux.Vars(r)["gameID"]
	if _, _, _, err := game.ParseID(gameID); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid game ID", err)
		return
	}

	records, err := h.archive.GetByGame(r.Context(), gameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch observations", err)
		return
	}
	if records == nil {
		records = []*store.ObservationRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":      gameID,
		"observations": records,
		"count":        len(records),
	})
}

func (h *Handler) loadRegions(w http.ResponseWriter, r *http.Request) (map[string]workbook.RegionState, bool) {
	date := mux.Vars(r)["date"]
	if _, err := time.Parse(game.DateLayout, date); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return nil, false
	}

	regions, err := workbook.LoadRegions(h.workbookPath, date, h.logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrMalformedIdentifier) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, "Failed to read sheet", err)
		return nil, false
	}
	return regions, true
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
