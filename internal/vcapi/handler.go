package vcapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/httputil"
)

// Handler exposes the VC-API exchange endpoint. Both exchange steps share
// one route; the body decides which step runs, per the VC-API workflow
// model.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/workflows/{workflowId}/exchanges/{exchangeId}", h.participate)
}

func (h *Handler) participate(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowId")
	exchangeID := chi.URLParam(r, "exchangeId")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	// An empty body (or one without a presentation) initiates the exchange;
	// a presentation completes it.
	var req PresentRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
			return
		}
	}

	if req.VerifiablePresentation == nil {
		resp, err := h.service.Initiate(r.Context(), workflowID, exchangeID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp, err := h.service.Complete(r.Context(), workflowID, exchangeID, *req.VerifiablePresentation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
