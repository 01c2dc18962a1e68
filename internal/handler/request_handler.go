package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	workflow service.WorkflowService
}

func NewRequestHandler(workflow service.WorkflowService) *RequestHandler {
	return &RequestHandler{workflow: workflow}
}

// RegisterRoutes binds the trip request lifecycle endpoints
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	anyRole := middleware.RequireRole("admin", "manager", "operator", "requester")

	requests := router.Group("/requests")
	{
		requests.POST("", anyRole, h.SubmitRequest)
		requests.GET("", middleware.RequireRole("admin", "manager", "operator"), h.ListRequests)
		requests.GET("/my", anyRole, h.ListMyRequests)
		requests.GET("/overdue", middleware.RequireRole("admin", "manager"), h.ListOverdue)
		requests.GET("/:id", anyRole, h.GetRequest)
		requests.POST("/:id/assign", middleware.RequireRole("admin", "operator"), h.AssignResources)
		requests.POST("/:id/start", middleware.RequireRole("admin", "operator"), h.StartTrip)
		requests.POST("/:id/complete", middleware.RequireRole("admin", "operator"), h.CompleteTrip)
		requests.POST("/:id/cancel", anyRole, h.CancelRequest)
		requests.POST("/:id/retry", middleware.RequireRole("admin"), h.RetryStalled)
	}

	approvals := router.Group("/approvals")
	{
		approvals.GET("/pending", middleware.RequireRole("admin", "manager"), h.ListPendingApprovals)
		approvals.PUT("/:id/approve", middleware.RequireRole("admin", "manager"), h.ApproveRequest)
		approvals.PUT("/:id/reject", middleware.RequireRole("admin", "manager"), h.RejectRequest)
	}
}

// SubmitRequest handles POST /requests to open a new trip request
// @Summary      Submit trip request
// @Description  Creates a trip request for the authenticated user and opens the eligibility check
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitTripRequestDTO  true  "Trip Request"
// @Success      201      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /requests [post]
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	var req service.SubmitTripRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.workflow.Submit(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests handles GET /requests with status/priority/stalled filters
// @Summary      List trip requests
// @Description  Retrieves a paginated list of trip requests with optional filters
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "Status filter"
// @Param        priority  query     string  false  "Priority filter"
// @Param        stalled   query     bool    false  "Only stalled requests"
// @Param        page      query     int     false  "Page number"
// @Param        limit     query     int     false  "Items per page"
// @Success      200       {object}  response.Response{data=object}
// @Router       /requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	p := pagination.Parse(c)
	filter := service.RequestFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Stalled:  c.Query("stalled") == "true",
		Page:     p.Page,
		Limit:    p.Limit,
	}

	requests, total, err := h.workflow.ListRequests(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch requests"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
		"page":     p.Page,
		"limit":    p.Limit,
	}))
}

// ListMyRequests handles GET /requests/my for the authenticated requester
func (h *RequestHandler) ListMyRequests(c *gin.Context) {
	p := pagination.Parse(c)

	requests, total, err := h.workflow.ListByRequester(c.Request.Context(), currentUserID(c), p.Page, p.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch requests"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
		"page":     p.Page,
		"limit":    p.Limit,
	}))
}

// ListOverdue handles GET /requests/overdue
// @Summary      List overdue requests
// @Description  Retrieves submitted requests that received no decision within 24 hours
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.TripRequestResponse}
// @Router       /requests/overdue [get]
func (h *RequestHandler) ListOverdue(c *gin.Context) {
	requests, err := h.workflow.OverdueRequests(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch overdue requests"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, requests))
}

// GetRequest handles GET /requests/:id
// @Summary      Get trip request
// @Description  Fetch a single trip request with its approvals and assigned resources
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.TripRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	result, err := h.workflow.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// AssignResources handles POST /requests/:id/assign
// @Summary      Assign vehicle and driver
// @Description  Assigns an available vehicle and driver to an approved request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Request ID"
// @Param        payload  body      service.AssignResourcesDTO  true  "Assignment"
// @Success      200      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/assign [post]
func (h *RequestHandler) AssignResources(c *gin.Context) {
	var req service.AssignResourcesDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.workflow.AssignResources(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// StartTrip handles POST /requests/:id/start
// @Summary      Start trip
// @Description  Marks an assigned request as in progress and records the actual departure time
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400  {object}  response.Response
// @Router       /requests/{id}/start [post]
func (h *RequestHandler) StartTrip(c *gin.Context) {
	result, err := h.workflow.StartTrip(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CompleteTrip handles POST /requests/:id/complete
// @Summary      Complete trip
// @Description  Closes an in-progress trip, records distance and releases the vehicle
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Request ID"
// @Param        payload  body      service.CompleteTripDTO true  "Completion details"
// @Success      200      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /requests/{id}/complete [post]
func (h *RequestHandler) CompleteTrip(c *gin.Context) {
	var req service.CompleteTripDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.workflow.CompleteTrip(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelRequest handles POST /requests/:id/cancel
// @Summary      Cancel trip request
// @Description  Cancels a non-terminal request, releasing any assigned resources
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.CancelRequestDTO  true  "Cancellation reason"
// @Success      200      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /requests/{id}/cancel [post]
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	var req service.CancelRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Reason validation happens in the service so the error carries a status
		req.Reason = ""
	}

	result, err := h.workflow.Cancel(c.Request.Context(), currentUserID(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RetryStalled handles POST /requests/:id/retry to re-run approver selection
func (h *RequestHandler) RetryStalled(c *gin.Context) {
	result, err := h.workflow.RetryStalled(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListPendingApprovals handles GET /approvals/pending for the authenticated approver
// @Summary      List pending approvals
// @Description  Retrieves approvals awaiting a decision from the authenticated user
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.ApprovalResponse}
// @Router       /approvals/pending [get]
func (h *RequestHandler) ListPendingApprovals(c *gin.Context) {
	approvals, err := h.workflow.ListPendingApprovals(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch approvals"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvals))
}

// ApproveRequest handles PUT /approvals/:id/approve
// @Summary      Approve
// @Description  Records an approve decision on a pending approval
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true   "Approval ID"
// @Param        payload  body      service.DecisionDTO  false  "Comments"
// @Success      200      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /approvals/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	var req service.DecisionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Comments are optional on approval
		req.Comments = ""
	}

	result, err := h.workflow.RecordApprovalDecision(c.Request.Context(), c.Param("id"), true, req.Comments)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest handles PUT /approvals/:id/reject
// @Summary      Reject
// @Description  Records a reject decision on a pending approval, a reason is required
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true  "Approval ID"
// @Param        payload  body      service.DecisionDTO  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.TripRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /approvals/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	var req service.DecisionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Comments = ""
	}

	result, err := h.workflow.RecordApprovalDecision(c.Request.Context(), c.Param("id"), false, req.Comments)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// currentUserID reads the authenticated user's ID set by RequireRole
func currentUserID(c *gin.Context) string {
	userID, _ := c.Get("userID")
	idStr, _ := userID.(string)
	return idStr
}

// respondError maps workflow errors to HTTP statuses via the error taxonomy
func respondError(c *gin.Context, err error) {
	status := apperror.Status(err)
	c.JSON(status, response.Error(status, err.Error()))
}
