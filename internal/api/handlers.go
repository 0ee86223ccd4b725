// Package api is the REST surface of the auction service: auction creation
// and read-side queries. Live interaction happens over the WebSocket
// gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/draftkit/teamauction/internal/auction"
	"github.com/draftkit/teamauction/internal/auth"
	"github.com/draftkit/teamauction/internal/config"
	"github.com/draftkit/teamauction/internal/league"
	"github.com/draftkit/teamauction/internal/models"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Engine   *auction.Engine
	Leagues  *league.Client
	Verifier *auth.Verifier

	// Defaults fill in auction settings a create request leaves zero.
	Defaults config.AuctionDefaults
}

// NewHandler creates a new handler.
func NewHandler(engine *auction.Engine, leagues *league.Client, verifier *auth.Verifier) *Handler {
	return &Handler{
		Engine:   engine,
		Leagues:  leagues,
		Verifier: verifier,
		Defaults: config.AuctionDefaults{MinimumBid: 1, BidIncrement: 1, BidTimerSec: 30, BidTimerWarningSec: 10},
	}
}

// Routes mounts the REST endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/auctions", h.CreateAuction)
		r.Get("/auctions/{auctionID}", h.GetAuction)
		r.Get("/auctions/{auctionID}/bids", h.GetAuctionBids)
	})
}

// JWTAuthMiddleware verifies session tokens and stashes the user ID.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		userID, err := h.Verifier.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid session token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// CreateAuctionRequest is the POST /auctions body. Settings not supplied
// fall back to league defaults.
type CreateAuctionRequest struct {
	LeagueID uuid.UUID              `json:"league_id"`
	Settings models.AuctionSettings `json:"settings"`
	Teams    []string               `json:"teams,omitempty"`
}

// CreateAuction creates a scheduled auction for a league. The caller becomes
// the auctioneer; the participant set is the league roster at this moment.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(uuid.UUID)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LeagueID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "league_id is required")
		return
	}

	lg, err := h.Leagues.GetLeague(r.Context(), req.LeagueID)
	if err != nil {
		log.Error().Err(err).Str("league_id", req.LeagueID.String()).Msg("league lookup failed")
		writeError(w, http.StatusBadGateway, "League service unavailable")
		return
	}
	if userID != lg.CommissionerID {
		writeError(w, http.StatusForbidden, "Only the league commissioner may create the auction")
		return
	}

	settings := req.Settings
	if settings.MinParticipants == 0 {
		settings.MinParticipants = lg.MinTeams
	}
	if settings.MaxParticipants == 0 {
		settings.MaxParticipants = lg.MaxTeams
	}
	if settings.MinimumBid <= 0 {
		settings.MinimumBid = h.Defaults.MinimumBid
	}
	if settings.BidIncrement <= 0 {
		settings.BidIncrement = h.Defaults.BidIncrement
	}
	if settings.BidTimerSec <= 0 {
		settings.BidTimerSec = h.Defaults.BidTimerSec
	}
	if settings.BidTimerWarningSec <= 0 {
		settings.BidTimerWarningSec = h.Defaults.BidTimerWarningSec
	}
	if !settings.StrictIncrement {
		settings.StrictIncrement = h.Defaults.StrictIncrement
	}

	participants := make([]models.Participant, len(lg.Members))
	for i, m := range lg.Members {
		participants[i] = models.Participant{UserID: m.UserID, Username: m.Username}
	}

	snap, err := h.Engine.Create(r.Context(), auction.CreateRequest{
		LeagueID:     lg.ID,
		AuctioneerID: userID,
		Participants: participants,
		Settings:     settings,
		TeamIDs:      req.Teams,
	})
	if err != nil {
		log.Error().Err(err).Msg("auction creation failed")
		writeError(w, http.StatusInternalServerError, "Failed to create auction")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(snap)
}

// GetAuction returns the authoritative snapshot of an auction.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(chi.URLParam(r, "auctionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid auction ID")
		return
	}

	snap, err := h.Engine.Snapshot(auctionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetAuctionBids returns the auction's full bid ledger in accepted order.
func (h *Handler) GetAuctionBids(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(chi.URLParam(r, "auctionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid auction ID")
		return
	}

	bids, err := h.Engine.Bids(auctionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

func writeEngineError(w http.ResponseWriter, err error) {
	var aerr *auction.Error
	if errors.As(err, &aerr) && aerr.Kind == auction.KindAuctionNotFound {
		writeError(w, http.StatusNotFound, "Auction not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
