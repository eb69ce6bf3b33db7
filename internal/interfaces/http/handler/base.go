package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return ""
}

// getStoreID extracts the store ID placed in context by the store middleware
func getStoreID(c *gin.Context) (uuid.UUID, error) {
	storeID, err := middleware.GetStoreUUID(c)
	if err != nil {
		return uuid.Nil, err
	}
	if storeID == uuid.Nil {
		return uuid.Nil, errors.New("store ID not found in context")
	}
	return storeID, nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response for asynchronously-processed work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, getRequestID(c)))
}

// HandleDomainError converts domain errors to HTTP responses
func (h *BaseHandler) HandleDomainError(c *gin.Context, err error) {
	requestID := getRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, err.Error(), requestID))
		return
	}

	if code := sentinelErrorCode(err); code != "" {
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, err.Error(), requestID))
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}

// sentinelErrorCode classifies the domain packages' sentinel errors.
// Returns "" for errors that should surface as 500.
func sentinelErrorCode(err error) string {
	switch {
	case errors.Is(err, channel.ErrChannelNotFound),
		errors.Is(err, channel.ErrMappingNotFound),
		errors.Is(err, allocation.ErrAllocationNotFound),
		errors.Is(err, conflict.ErrConflictNotFound),
		errors.Is(err, sync.ErrJobNotFound),
		errors.Is(err, sync.ErrStatusNotFound),
		errors.Is(err, sync.ErrWebhookNotFound):
		return dto.ErrCodeNotFound

	case errors.Is(err, channel.ErrMappingAlreadyExists):
		return dto.ErrCodeAlreadyExists

	case errors.Is(err, channel.ErrBreakerOpen),
		errors.Is(err, channel.ErrRequestFailed),
		errors.Is(err, channel.ErrInvalidResponse):
		return dto.ErrCodeChannelUnavailable

	case errors.Is(err, channel.ErrAuthFailed):
		return dto.ErrCodeChannelAuth

	case errors.Is(err, channel.ErrRateLimited):
		return dto.ErrCodeRateLimited

	case errors.Is(err, channel.ErrChannelInactive),
		errors.Is(err, conflict.ErrConflictClosed),
		errors.Is(err, conflict.ErrNoResolutionRecorded),
		errors.Is(err, allocation.ErrPlanExceedsStock),
		errors.Is(err, allocation.ErrPlanBelowReserved),
		errors.Is(err, sync.ErrInvalidTransition),
		errors.Is(err, sync.ErrJobAlreadyFinished):
		return dto.ErrCodeInvalidState

	case errors.Is(err, channel.ErrInvalidChannelType),
		errors.Is(err, conflict.ErrUnknownStrategy),
		errors.Is(err, conflict.ErrNoObservations),
		errors.Is(err, allocation.ErrUnknownStrategy),
		errors.Is(err, allocation.ErrNoChannels),
		errors.Is(err, allocation.ErrNoWeights),
		errors.Is(err, allocation.ErrInvalidQuantity),
		errors.Is(err, allocation.ErrInvalidBuffer),
		errors.Is(err, allocation.ErrInvalidPhysicalStock),
		errors.Is(err, allocation.ErrOrderRefRequired),
		errors.Is(err, allocation.ErrChannelNotAllocated):
		return dto.ErrCodeInvalidInput
	}
	return ""
}
