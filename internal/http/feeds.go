package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/catalog"
)

// FeedsController handles stored feed definitions.
type FeedsController struct {
	feeds   FeedManager
	browser CatalogBrowser
}

func NewFeedsController(feeds FeedManager, browser CatalogBrowser) *FeedsController {
	return &FeedsController{
		feeds:   feeds,
		browser: browser,
	}
}

// FeedRequest is the body of POST /api/feeds and PUT /api/feeds/:id.
type FeedRequest struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// ListFeeds handles GET /api/feeds
func (fc *FeedsController) ListFeeds(c *gin.Context) {
	list, err := fc.feeds.FindAllFeeds(c.Request.Context())
	if err != nil {
		respondCatalogError(c, err, "list feeds")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"feeds": list, "count": len(list)})
}

// GetFeed handles GET /api/feeds/:id
func (fc *FeedsController) GetFeed(c *gin.Context) {
	feed, err := fc.feeds.GetFeed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondCatalogError(c, err, "get feed")
		return
	}
	c.IndentedJSON(http.StatusOK, feed)
}

// AddFeed handles POST /api/feeds
func (fc *FeedsController) AddFeed(c *gin.Context) {
	var req FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	feed, err := fc.feeds.AddFeed(c.Request.Context(), catalog.FeedInput(req))
	if err != nil {
		respondCatalogError(c, err, "add feed")
		return
	}
	respondCreated(c, feed)
}

// UpdateFeed handles PUT /api/feeds/:id
// The path identifier wins over any identifier in the body.
func (fc *FeedsController) UpdateFeed(c *gin.Context) {
	var req FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	req.Identifier = c.Param("id")

	feed, err := fc.feeds.UpdateFeed(c.Request.Context(), catalog.FeedInput(req))
	if err != nil {
		respondCatalogError(c, err, "update feed")
		return
	}
	c.IndentedJSON(http.StatusOK, feed)
}

// DeleteFeed handles DELETE /api/feeds/:id
func (fc *FeedsController) DeleteFeed(c *gin.Context) {
	if err := fc.feeds.DeleteFeed(c.Request.Context(), c.Param("id")); err != nil {
		respondCatalogError(c, err, "delete feed")
		return
	}
	respondSuccess(c, "feed deleted")
}

// BrowseFeed handles GET /api/feeds/:id/browse
func (fc *FeedsController) BrowseFeed(c *gin.Context) {
	feed, err := fc.browser.BrowseFeed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondCatalogError(c, err, "browse feed")
		return
	}
	c.JSON(http.StatusOK, feed)
}
