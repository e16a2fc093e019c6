package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/memberhq/be-board-approvals/internal/errors"
	"github.com/memberhq/be-board-approvals/internal/middleware"
	"github.com/memberhq/be-board-approvals/internal/repository"
	"github.com/memberhq/be-board-approvals/internal/service"
)

// voteRetryAttempts bounds the read-modify-write retries when a concurrent
// vote on the same application wins the version check.
const voteRetryAttempts = 3

// HTTPHandler maps HTTP routes onto the application and board review
// services. Role checks happen here; the services only see resolved caller
// ids.
type HTTPHandler struct {
	applications *service.ApplicationService
	board        *service.BoardReviewService
	log          zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(applications *service.ApplicationService, board *service.BoardReviewService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		applications: applications,
		board:        board,
		log:          log,
	}
}

// Register mounts all authenticated routes. The caller is expected to have
// applied the Auth middleware on r already.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.CreateApplication)
			r.With(middleware.RequireRole(middleware.RoleBoardMember, middleware.RoleAdmin)).
				Get("/", h.ListApplications)

			r.Route("/{applicationID}", func(r chi.Router) {
				r.Get("/", h.GetApplication)
				r.Patch("/", h.UpdateDraft)
				r.Delete("/", h.WithdrawDraft)
				r.Post("/submit", h.SubmitApplication)
			})
		})

		r.Route("/board", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleBoardMember, middleware.RoleAdmin))

			r.Get("/applications/pending", h.PendingApplications)
			r.Get("/stats", h.BoardMemberStats)

			r.Route("/applications/{applicationID}", func(r chi.Router) {
				r.Post("/vote", h.CastVote)
				r.Get("/votes", h.VoteHistory)
				r.With(middleware.RequireRole(middleware.RoleAdmin)).
					Post("/review", h.StartBoardReview)
			})
		})
	})
}

// ── Application lifecycle ─────────────────────────────────────────────────────

type createApplicationRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Motivation string `json:"motivation"`
}

func (h *HTTPHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	app, err := h.applications.CreateApplication(r.Context(), &service.CreateApplicationRequest{
		ApplicantID: identity.UserID,
		FullName:    req.FullName,
		Email:       req.Email,
		Motivation:  req.Motivation,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, app)
}

func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	app, err := h.applications.GetApplication(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	// Applicants may only see their own application.
	if identity.Role == middleware.RoleApplicant && app.ApplicantID != identity.UserID {
		h.writeError(w, errors.New(errors.ErrCodeUnauthorized, "not your application"))
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *HTTPHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	status := repository.ApplicationStatus(r.URL.Query().Get("status"))

	apps, err := h.applications.ListApplications(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"total":        len(apps),
	})
}

type updateDraftRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Motivation string `json:"motivation"`
}

func (h *HTTPHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	app, err := h.applications.UpdateDraft(r.Context(), chi.URLParam(r, "applicationID"),
		identity.UserID, req.FullName, req.Email, req.Motivation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *HTTPHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	app, err := h.applications.Submit(r.Context(), chi.URLParam(r, "applicationID"), identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *HTTPHandler) WithdrawDraft(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.applications.WithdrawDraft(r.Context(), chi.URLParam(r, "applicationID"), identity.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Board review ──────────────────────────────────────────────────────────────

type startReviewRequest struct {
	BoardMemberIDs []string `json:"board_member_ids"`
}

func (h *HTTPHandler) StartBoardReview(w http.ResponseWriter, r *http.Request) {
	var req startReviewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, errors.InvalidInput("body", "invalid request body"))
			return
		}
	}

	roster := req.BoardMemberIDs
	if len(roster) == 0 {
		var err error
		roster, err = h.applications.BoardRoster(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	app, err := h.board.SubmitForBoardReview(r.Context(), chi.URLParam(r, "applicationID"), roster)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

type castVoteRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h *HTTPHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	applicationID := chi.URLParam(r, "applicationID")
	action := repository.VoteAction(req.Action)

	var result *service.VoteResult
	var err error
	for attempt := 1; attempt <= voteRetryAttempts; attempt++ {
		result, err = h.board.CastVote(r.Context(), applicationID, identity.UserID, action, req.Notes)
		if err == nil || !errors.Is(err, errors.ErrCodeConcurrentModification) {
			break
		}
		h.log.Debug().
			Str("application_id", applicationID).
			Str("board_member_id", identity.UserID).
			Int("attempt", attempt).
			Msg("Retrying vote after concurrent modification")
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) PendingApplications(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	apps, err := h.board.GetPendingApplications(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"total":        len(apps),
	})
}

func (h *HTTPHandler) VoteHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.board.GetVoteHistory(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"votes": history,
		"total": len(history),
	})
}

func (h *HTTPHandler) BoardMemberStats(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	stats, err := h.board.GetBoardMemberStats(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ── response plumbing ─────────────────────────────────────────────────────────

func (h *HTTPHandler) identity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeStatus(w, http.StatusUnauthorized, "not authenticated", "unauthorized")
		return nil, false
	}
	return identity, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError translates a coded error into a status code and a caller-safe
// message. Underlying store errors never leak to the client.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusForCode(code)
	message := errors.MessageOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}
	h.writeStatus(w, status, message, string(code))
}

func (h *HTTPHandler) writeStatus(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

func statusForCode(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case errors.ErrCodeAlreadyVoted, errors.ErrCodeConflict, errors.ErrCodeConcurrentModification:
		return http.StatusConflict
	case errors.ErrCodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
