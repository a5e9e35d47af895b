package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
)

// UserLister lists accounts, optionally by role
type UserLister interface {
	List(ctx context.Context, role string) ([]models.User, error)
}

// ListUsers returns accounts newest first. Admins may filter by ?role=;
// agents may only list other agents, for the appointment filter.
func ListUsers(users UserLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}

		role := c.Query("role")
		if viewer.IsAgent() && role != models.RoleAgent {
			c.JSON(http.StatusForbidden, gin.H{"error": "Agents may only list agents"})
			return
		}

		list, err := users.List(c.Request.Context(), role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
	}
}

// GetUser returns one account by ID (admin only)
func GetUser(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
	}
}
