package handler

import (
	"errors"
	"net/http"
	"time"

	"dealership_portal/internal/board/session"
	"dealership_portal/internal/board/sse"
	"dealership_portal/internal/board/transport"
	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/conflict"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/reconciler"
	"dealership_portal/platform/apperr"
	"dealership_portal/platform/httpkit"
	"dealership_portal/platform/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sessions *session.Registry
	sse      *sse.Service
	val      *validator.Validator
}

const msgInvalidRequest = "invalid request"

func New(sessions *session.Registry, stream *sse.Service, val *validator.Validator) *Handler {
	return &Handler{sessions: sessions, sse: stream, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Close)
	rg.PUT("/:id/filter", h.UpdateFilter)
	rg.POST("/:id/refresh", h.Refresh)
	rg.POST("/:id/moves", h.Move)
	rg.POST("/:id/stages/:stageId/more", h.LoadMore)
	rg.POST("/:id/conflicts/:ticketId", h.ResolveConflict)
	rg.DELETE("/:id/alerts/:alertId", h.DismissAlert)
	rg.GET("/:id/stream", h.Stream)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	owner := httpkit.GetIdentity(c).UserID
	s, err := h.sessions.Create(c.Request.Context(), owner, req.Filter)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.SessionResponse{SessionID: s.ID, Snapshot: s.View.Snapshot()})
}

func (h *Handler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	httpkit.OK(c, transport.SessionResponse{SessionID: s.ID, Snapshot: s.View.Snapshot()})
}

func (h *Handler) Close(c *gin.Context) {
	err := h.sessions.Close(c.Param("id"), httpkit.GetIdentity(c).UserID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) UpdateFilter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req transport.UpdateFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if h.fail(c, s.View.SetFilter(c.Request.Context(), req.Filter)) {
		return
	}
	httpkit.Accepted(c, transport.AcceptedResponse{Status: "scheduled"})
}

func (h *Handler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.View.Refresh(c.Request.Context())) {
		return
	}
	httpkit.Accepted(c, transport.AcceptedResponse{Status: "refreshing"})
}

func (h *Handler) Move(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req transport.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationError(c, err)
		return
	}

	drop := domain.DropEvent{LeadID: req.LeadID, TargetID: req.TargetID}
	if h.fail(c, s.View.Drop(c.Request.Context(), drop)) {
		return
	}
	httpkit.Accepted(c, transport.SessionResponse{SessionID: s.ID, Snapshot: s.View.Snapshot()})
}

func (h *Handler) LoadMore(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.View.LoadMore(c.Request.Context(), c.Param("stageId"))) {
		return
	}
	httpkit.Accepted(c, transport.AcceptedResponse{Status: "loading"})
}

func (h *Handler) ResolveConflict(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req transport.ConflictDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationError(c, err)
		return
	}

	if h.fail(c, s.View.ResolveConflict(c.Request.Context(), c.Param("ticketId"), *req.Confirm)) {
		return
	}
	httpkit.OK(c, transport.SessionResponse{SessionID: s.ID, Snapshot: s.View.Snapshot()})
}

func (h *Handler) DismissAlert(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.View.DismissAlert(c.Request.Context(), c.Param("alertId"))) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) Stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.StreamOpened()
	defer s.StreamClosed()
	h.sse.Stream(c, s.ID, s.View, func() { s.Touch(time.Now()) })
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"), httpkit.GetIdentity(c).UserID)
	if httpkit.HandleError(c, err) {
		return nil, false
	}
	return s, true
}

func (h *Handler) fail(c *gin.Context, err error) bool {
	return httpkit.HandleError(c, mapViewError(err))
}

// mapViewError gives the pipeline's sentinel errors an HTTP kind.
func mapViewError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reconciler.ErrNoTransition):
		return apperr.Wrap(apperr.KindBadRequest, "lead is already in that stage", err)
	case errors.Is(err, reconciler.ErrUnknownTarget):
		return apperr.Wrap(apperr.KindBadRequest, "drop target is not on the board", err)
	case errors.Is(err, reconciler.ErrListLayout):
		return apperr.Wrap(apperr.KindBadRequest, "switch to the pipeline layout to move leads", err)
	case errors.Is(err, reconciler.ErrStaleDrag):
		return apperr.Wrap(apperr.KindConflict, "lead is no longer in that stage", err)
	case errors.Is(err, reconciler.ErrMoveInFlight):
		return apperr.Wrap(apperr.KindConflict, "lead is already being moved", err)
	case errors.Is(err, conflict.ErrUnknownTicket):
		return apperr.Wrap(apperr.KindNotFound, "conflict already resolved", err)
	case errors.Is(err, pipeline.ErrUnknownAlert):
		return apperr.Wrap(apperr.KindNotFound, "alert not found", err)
	case errors.Is(err, pipeline.ErrDisposed), errors.Is(err, pipeline.ErrNotMounted):
		return apperr.Wrap(apperr.KindNotFound, "pipeline session closed", err)
	}
	return err
}
