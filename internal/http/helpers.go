package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/crypto"
	"github.com/mrlokans/opdscatalog/internal/database/feeds"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // authentication document, validation errors, etc.
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// Machine-readable error codes
const (
	CodeNotFound         = "not_found"
	CodeDuplicate        = "duplicate_identifier"
	CodeInvalidInput     = "invalid_input"
	CodeAuthRequired     = "auth_required"
	CodeMalformedFeed    = "malformed_feed"
	CodeTooManyRedirects = "too_many_redirects"
	CodeTransportError   = "transport_error"
	CodeUpstreamStatus   = "upstream_status"
	CodeNoSearch         = "search_unsupported"
)

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeInvalidInput})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: CodeNotFound})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondError sends an error response with the given status code.
// Use the specific helpers (respondBadRequest, respondNotFound, etc.) when possible.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// respondCatalogError maps errors from the catalog service onto HTTP answers.
// Upstream catalog failures are gateway errors; local input problems are 4xx.
func respondCatalogError(c *gin.Context, err error, context string) {
	var authErr *opds.AuthRequiredError
	var statusErr *opds.HTTPStatusError

	switch {
	case errors.Is(err, feeds.ErrNotFound):
		respondNotFound(c, "feed")
	case errors.Is(err, feeds.ErrDuplicateIdentifier):
		respondError(c, http.StatusConflict, CodeDuplicate, err.Error())
	case errors.Is(err, feeds.ErrInvalidFeed),
		errors.Is(err, opds.ErrInvalidURL),
		errors.Is(err, oauth2.ErrInvalidRequest),
		errors.Is(err, crypto.ErrInvalidKey),
		errors.Is(err, crypto.ErrInvalidIV):
		respondBadRequest(c, err.Error())
	case errors.As(err, &authErr):
		resp := ErrorResponse{Error: authErr.Error(), Code: CodeAuthRequired}
		if authErr.Document != nil {
			resp.Details = authErr.Document
		}
		c.JSON(http.StatusUnauthorized, resp)
	case errors.Is(err, oauth2.ErrAuthRequired):
		respondError(c, http.StatusUnauthorized, CodeAuthRequired, err.Error())
	case errors.Is(err, opds.ErrMalformedFeed):
		respondError(c, http.StatusBadGateway, CodeMalformedFeed, err.Error())
	case errors.Is(err, httpclient.ErrTooManyRedirects):
		respondError(c, http.StatusBadGateway, CodeTooManyRedirects, err.Error())
	case errors.Is(err, httpclient.ErrTransport):
		respondError(c, http.StatusServiceUnavailable, CodeTransportError, err.Error())
	case errors.As(err, &statusErr):
		respondError(c, http.StatusBadGateway, CodeUpstreamStatus, err.Error())
	default:
		respondInternalError(c, err, context)
	}
}

// --- Success Response Helpers ---

// respondSuccess sends a 200 OK response with a message.
func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// requireQuery returns a non-empty query parameter or responds with a 400 error.
func requireQuery(c *gin.Context, name string) (string, bool) {
	value := c.Query(name)
	if value == "" {
		respondBadRequest(c, name+" is required")
		return "", false
	}
	return value, true
}

// parsePagination reads limit and offset, clamping limit to (0, maxLimit].
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
