package management

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/errors"
)

const UserIDHeader = "X-User-ID"

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

// ActorMiddleware records who made a change for the audit log.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), clientIPKey, c.ClientIP())
		if user := c.GetHeader(UserIDHeader); user != "" {
			ctx = context.WithValue(ctx, userIDKey, user)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(ActorMiddleware())
	{
		rules := v1.Group("/rules/routing")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.POST("/validate", h.ValidateMatchClause)
			rules.POST("/reload", h.Reload)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.GET("/:id/audit", h.GetRuleAuditLogs)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// ListRules godoc
// @Summary      List routing rules
// @Description  List routing rules in evaluation order, optionally for one lane
// @Tags         routing-rules
// @Accept       json
// @Produce      json
// @Param        lane_id  query     string  false  "Lane ID"
// @Success      200      {array}   RoutingRule
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /rules/routing [get]
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.Service.ListRoutingRules(c.Request.Context(), c.Query("lane_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule godoc
// @Summary      Create a routing rule
// @Description  Create a routing rule for a lane; the match clause must parse
// @Tags         routing-rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CreateRoutingRuleRequest  true  "Routing rule"
// @Success      201   {object}  RoutingRule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /rules/routing [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.CreateRoutingRule(c.Request.Context(), req)
	if err != nil {
		if errors.IsValidation(err) {
			response := errors.ToErrorResponse(err)
			response["message"] = err.Error()
			c.JSON(http.StatusBadRequest, response)
			return
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// GetRule godoc
// @Summary      Get a routing rule
// @Tags         routing-rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  RoutingRule
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/routing/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.Service.GetRoutingRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule godoc
// @Summary      Update a routing rule
// @Description  Update the given fields of a routing rule; the lane cannot change
// @Tags         routing-rules
// @Accept       json
// @Produce      json
// @Param        id    path      string                    true  "Rule ID"
// @Param        rule  body      UpdateRoutingRuleRequest  true  "Changed fields"
// @Success      200   {object}  RoutingRule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /rules/routing/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.UpdateRoutingRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary      Delete a routing rule
// @Tags         routing-rules
// @Param        id   path      string  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/routing/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.Service.DeleteRoutingRule(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ValidateMatchClause godoc
// @Summary      Validate a match clause
// @Description  Parse a routing match clause without storing anything
// @Tags         routing-rules
// @Accept       json
// @Produce      json
// @Param        clause  body      ValidateMatchClauseRequest  true  "Match clause"
// @Success      200     {object}  ValidateMatchClauseResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Router       /rules/routing/validate [post]
func (h *Handler) ValidateMatchClause(c *gin.Context) {
	var req ValidateMatchClauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	c.JSON(http.StatusOK, h.Service.ValidateMatchClause(c.Request.Context(), req.MatchClause))
}

// Reload godoc
// @Summary      Reload routing rules
// @Description  Ask every connector to reload the routing rules of a lane
// @Tags         routing-rules
// @Param        lane_id  query  string  false  "Lane ID"
// @Success      202  "Accepted"
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /rules/routing/reload [post]
func (h *Handler) Reload(c *gin.Context) {
	if err := h.Service.ReloadRouting(c.Request.Context(), c.Query("lane_id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetRuleAuditLogs godoc
// @Summary      Get audit logs for a rule
// @Tags         routing-rules
// @Produce      json
// @Param        id     path      string  true   "Rule ID"
// @Param        limit  query     int     false  "Maximum number of logs to return (1-1000)" default(100)
// @Success      200    {array}   AuditLog
// @Failure      500    {object}  errors.ErrorResponse
// @Router       /rules/routing/{id}/audit [get]
func (h *Handler) GetRuleAuditLogs(c *gin.Context) {
	id := c.Param("id")
	logs, err := h.Service.GetAuditLogs(c.Request.Context(), &id, ruleTypeRouting, parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetAuditLogs godoc
// @Summary      Get audit logs
// @Description  Get audit logs with optional filtering by rule ID and rule type
// @Tags         audit
// @Produce      json
// @Param        rule_id    query     string  false  "Filter by rule ID"
// @Param        rule_type  query     string  false  "Filter by rule type"
// @Param        limit      query     int     false  "Maximum number of logs to return (1-1000)" default(100)
// @Success      200        {array}   AuditLog
// @Failure      500        {object}  errors.ErrorResponse
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	var ruleID *string
	if id := c.Query("rule_id"); id != "" {
		ruleID = &id
	}

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), ruleID, c.Query("rule_type"), parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}
