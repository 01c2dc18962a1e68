package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FleetHandler struct {
	pool service.ResourcePool
}

func NewFleetHandler(pool service.ResourcePool) *FleetHandler {
	return &FleetHandler{pool: pool}
}

func (h *FleetHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := middleware.RequireRole("admin", "manager", "operator")
	write := middleware.RequireRole("admin", "operator")

	vehicles := router.Group("/vehicles")
	{
		vehicles.GET("", read, h.ListVehicles)
		vehicles.GET("/:id", read, h.GetVehicle)
		vehicles.POST("", write, h.CreateVehicle)
		vehicles.PUT("/:id", write, h.UpdateVehicle)
		vehicles.DELETE("/:id", middleware.RequireRole("admin"), h.DeleteVehicle)
	}

	drivers := router.Group("/drivers")
	{
		drivers.GET("", read, h.ListDrivers)
		drivers.GET("/:id", read, h.GetDriver)
		drivers.POST("", write, h.CreateDriver)
		drivers.PUT("/:id", write, h.UpdateDriver)
		drivers.DELETE("/:id", middleware.RequireRole("admin"), h.DeleteDriver)
	}
}

// actorUUID parses the authenticated user ID for audit attribution
func actorUUID(c *gin.Context) *uuid.UUID {
	id, err := uuid.Parse(currentUserID(c))
	if err != nil {
		return nil
	}
	return &id
}

// ListVehicles handles GET /vehicles with an optional status filter
// @Summary      List vehicles
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Status filter"
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Items per page"
// @Success      200     {object}  response.Response{data=object}
// @Router       /vehicles [get]
func (h *FleetHandler) ListVehicles(c *gin.Context) {
	p := pagination.Parse(c)

	vehicles, total, err := h.pool.ListVehicles(c.Request.Context(), c.Query("status"), p.Page, p.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch vehicles"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"vehicles": vehicles,
		"total":    total,
		"page":     p.Page,
		"limit":    p.Limit,
	}))
}

func (h *FleetHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.pool.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vehicle))
}

// CreateVehicle handles POST /vehicles
// @Summary      Register vehicle
// @Tags         fleet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateVehicleDTO  true  "Vehicle"
// @Success      201      {object}  response.Response{data=model.Vehicle}
// @Failure      400      {object}  response.Response
// @Router       /vehicles [post]
func (h *FleetHandler) CreateVehicle(c *gin.Context) {
	var req service.CreateVehicleDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	vehicle, err := h.pool.CreateVehicle(c.Request.Context(), actorUUID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, vehicle))
}

// UpdateVehicle handles PUT /vehicles/:id
// @Summary      Update vehicle
// @Tags         fleet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Vehicle ID"
// @Param        payload  body      service.UpdateVehicleDTO  true  "Changes"
// @Success      200      {object}  response.Response{data=model.Vehicle}
// @Failure      400      {object}  response.Response
// @Router       /vehicles/{id} [put]
func (h *FleetHandler) UpdateVehicle(c *gin.Context) {
	var req service.UpdateVehicleDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	vehicle, err := h.pool.UpdateVehicle(c.Request.Context(), actorUUID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, vehicle))
}

func (h *FleetHandler) DeleteVehicle(c *gin.Context) {
	if err := h.pool.DeleteVehicle(c.Request.Context(), actorUUID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Vehicle deleted successfully"))
}

// ListDrivers handles GET /drivers with an optional status filter
// @Summary      List drivers
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Status filter"
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Items per page"
// @Success      200     {object}  response.Response{data=object}
// @Router       /drivers [get]
func (h *FleetHandler) ListDrivers(c *gin.Context) {
	p := pagination.Parse(c)

	drivers, total, err := h.pool.ListDrivers(c.Request.Context(), c.Query("status"), p.Page, p.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch drivers"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"drivers": drivers,
		"total":   total,
		"page":    p.Page,
		"limit":   p.Limit,
	}))
}

func (h *FleetHandler) GetDriver(c *gin.Context) {
	driver, err := h.pool.GetDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, driver))
}

// CreateDriver handles POST /drivers
// @Summary      Register driver
// @Tags         fleet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDriverDTO  true  "Driver"
// @Success      201      {object}  response.Response{data=model.Driver}
// @Failure      400      {object}  response.Response
// @Router       /drivers [post]
func (h *FleetHandler) CreateDriver(c *gin.Context) {
	var req service.CreateDriverDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	driver, err := h.pool.CreateDriver(c.Request.Context(), actorUUID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, driver))
}

// UpdateDriver handles PUT /drivers/:id
// @Summary      Update driver
// @Tags         fleet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Driver ID"
// @Param        payload  body      service.UpdateDriverDTO  true  "Changes"
// @Success      200      {object}  response.Response{data=model.Driver}
// @Failure      400      {object}  response.Response
// @Router       /drivers/{id} [put]
func (h *FleetHandler) UpdateDriver(c *gin.Context) {
	var req service.UpdateDriverDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	driver, err := h.pool.UpdateDriver(c.Request.Context(), actorUUID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, driver))
}

func (h *FleetHandler) DeleteDriver(c *gin.Context) {
	if err := h.pool.DeleteDriver(c.Request.Context(), actorUUID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Driver deleted successfully"))
}
