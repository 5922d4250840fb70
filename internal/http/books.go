package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwhitley/stacks/internal/database/books"
)

// BooksController exposes the catalog reads the import review UI needs.
type BooksController struct {
	repo *books.Repository
}

func NewBooksController(repo *books.Repository) *BooksController {
	return &BooksController{repo: repo}
}

// Search handles GET /api/books/search. Used while matching reading-history
// groups to existing catalog entries.
func (controller *BooksController) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 50 {
			limit = parsed
		}
	}

	results, err := controller.repo.Search(query, ownerID(c), limit)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"books": results, "count": len(results)})
}

// Get handles GET /api/books/:id.
func (controller *BooksController) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	book, err := controller.repo.GetBookByID(uint(id))
	if err != nil || book.OwnerID != ownerID(c) {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, book)
}
