package claimlink

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"boostnet/internal/boost"
	"boostnet/internal/events"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	"boostnet/internal/platform/middleware"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/httputil"
)

// Handler exposes claim-link issuance and redemption. Issuance requires
// issue permission on the boost; redemption only requires authentication,
// the link itself is the capability.
type Handler struct {
	links      *Manager
	boosts     *boost.Service
	graphStore graph.Store
	emitter    *events.Emitter
	metrics    *metrics.Metrics
}

func NewHandler(links *Manager, boosts *boost.Service, graphStore graph.Store, emitter *events.Emitter, m *metrics.Metrics) *Handler {
	return &Handler{links: links, boosts: boosts, graphStore: graphStore, emitter: emitter, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/boosts/{boostId}/claim-links", h.issue)
	r.Post("/boosts/{boostId}/claim-links/consume", h.consume)
}

type issueRequest struct {
	SigningAuthority SigningAuthorityRef `json:"signingAuthority"`
	TTLSeconds       int                 `json:"ttlSeconds,omitempty"`
	TotalUses        int                 `json:"totalUses,omitempty"`
}

type issueResponse struct {
	Challenge string `json:"challenge"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	boostID := chi.URLParam(r, "boostId")
	callerID := middleware.GetProfileID(r.Context())

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}
	if req.SigningAuthority.Endpoint == "" || req.SigningAuthority.Name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "signingAuthority endpoint and name are required"))
		return
	}

	perms, err := h.graphStore.ProfilePermissions(r.Context(), callerID, boostID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "boost not found"))
		return
	}
	if !perms.CanIssue {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient permissions to issue claim links"))
		return
	}

	challenge, err := h.links.Issue(r.Context(), boostID, req.SigningAuthority, Options{
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
		TotalUses: req.TotalUses,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.metrics.ClaimLinksIssued.Inc()
	h.emitter.Emit(r.Context(), events.Event{
		Type:      events.TypeClaimLinkIssued,
		ProfileID: callerID,
		BoostID:   boostID,
	})
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{Challenge: challenge})
}

type consumeRequest struct {
	Challenge string `json:"challenge"`
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	boostID := chi.URLParam(r, "boostId")
	callerID := middleware.GetProfileID(r.Context())
	callerDid := middleware.GetDid(r.Context())

	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}
	if req.Challenge == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "challenge is required"))
		return
	}

	authority, err := h.links.Consume(r.Context(), boostID, req.Challenge)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.metrics.ClaimLinksConsumed.Inc()
	h.emitter.Emit(r.Context(), events.Event{
		Type:      events.TypeClaimLinkConsumed,
		ProfileID: callerID,
		BoostID:   boostID,
	})

	_, signed, err := h.boosts.SendCredential(r.Context(), boost.SendInput{
		BoostID:            boostID,
		RecipientProfileID: callerID,
		RecipientDid:       callerDid,
		AuthorityEndpoint:  authority.Endpoint,
		AuthorityName:      authority.Name,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credential": signed})
}
