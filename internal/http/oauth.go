package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/oauth2"
)

// OAuthController authenticates against protected catalogs.
type OAuthController struct {
	auth CatalogAuthenticator
}

func NewOAuthController(auth CatalogAuthenticator) *OAuthController {
	return &OAuthController{auth: auth}
}

// OAuthResponse reports the outcome of an authentication attempt.
type OAuthResponse struct {
	Authenticated bool         `json:"authenticated"`
	State         oauth2.State `json:"state"`
}

// Authenticate handles POST /api/oauth
// Rejected credentials are a normal outcome and answer 200 with
// authenticated=false.
func (oc *OAuthController) Authenticate(c *gin.Context) {
	var req oauth2.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ok, err := oc.auth.OAuth(c.Request.Context(), req)
	if err != nil {
		respondCatalogError(c, err, "oauth")
		return
	}

	c.JSON(http.StatusOK, OAuthResponse{
		Authenticated: ok,
		State:         oc.auth.AuthState(req.CatalogURL),
	})
}

// GetState handles GET /api/oauth/state?url=
func (oc *OAuthController) GetState(c *gin.Context) {
	target, ok := requireQuery(c, "url")
	if !ok {
		return
	}

	state := oc.auth.AuthState(target)
	c.JSON(http.StatusOK, OAuthResponse{
		Authenticated: state == oauth2.StateAuthenticated,
		State:         state,
	})
}

// LogoutRequest is the body of POST /api/oauth/logout.
type LogoutRequest struct {
	CatalogURL string `json:"catalog_url" binding:"required"`
}

// Logout handles POST /api/oauth/logout
func (oc *OAuthController) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "catalog_url is required")
		return
	}

	if err := oc.auth.Logout(c.Request.Context(), req.CatalogURL); err != nil {
		respondCatalogError(c, err, "logout")
		return
	}
	respondSuccess(c, "logged out")
}
