package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/catalog"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// BrowseController fetches remote catalogs on behalf of the client.
type BrowseController struct {
	browser CatalogBrowser
}

func NewBrowseController(browser CatalogBrowser) *BrowseController {
	return &BrowseController{browser: browser}
}

// Browse handles GET /api/browse?url=
func (bc *BrowseController) Browse(c *gin.Context) {
	target, ok := requireQuery(c, "url")
	if !ok {
		return
	}

	feed, err := bc.browser.Browse(c.Request.Context(), target)
	if err != nil {
		respondCatalogError(c, err, "browse")
		return
	}
	c.JSON(http.StatusOK, feed)
}

// Search handles GET /api/search?url=&q=
// The catalog at url is browsed, its search template expanded with q and the
// results fetched.
func (bc *BrowseController) Search(c *gin.Context) {
	target, ok := requireQuery(c, "url")
	if !ok {
		return
	}

	result, err := bc.browser.Search(c.Request.Context(), target, c.Query("q"))
	if err != nil {
		if errors.Is(err, catalog.ErrNoSearch) {
			respondError(c, http.StatusNotFound, CodeNoSearch, err.Error())
			return
		}
		respondCatalogError(c, err, "search")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResolveSearchRequest is the body of POST /api/search/resolve.
type ResolveSearchRequest struct {
	Links []opds.SearchLink `json:"links"`
	Query string            `json:"query"`

	// Type is the preferred template media type (default: OPDS 1 catalog)
	Type string `json:"type,omitempty"`
}

// ResolveSearchResponse reports the expanded search URL. Found is false when
// no link could be used; that is not an error.
type ResolveSearchResponse struct {
	URL   string `json:"url,omitempty"`
	Found bool   `json:"found"`
}

// ResolveSearch handles POST /api/search/resolve
func (bc *BrowseController) ResolveSearch(c *gin.Context) {
	var req ResolveSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = opds.MediaTypeAtomCatalog
	}

	url, found := bc.browser.ResolveSearch(c.Request.Context(), req.Links, req.Query, req.Type)
	c.JSON(http.StatusOK, ResolveSearchResponse{URL: url, Found: found})
}
