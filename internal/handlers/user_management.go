package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/auth"
	"github.com/lakestack/hometrace/internal/models"
	"github.com/lakestack/hometrace/internal/repository"
)

// UserCreator stores new accounts
type UserCreator interface {
	Create(ctx context.Context, u *models.User) error
}

// UserEditor changes and removes accounts
type UserEditor interface {
	UserLookup
	Update(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PropertyCreator stores new listings
type PropertyCreator interface {
	Create(ctx context.Context, p *models.Property) error
}

type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=admin agent"`
	Password  string `json:"password" binding:"required,min=8"`
}

// CreateUser creates an agent or admin account (admin only)
func CreateUser(users UserCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
			PasswordHash: &hash,
		}
		if err := users.Create(c.Request.Context(), user); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user", "details": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": user})
	}
}

type UpdateUserRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=1"`
	LastName  *string `json:"lastName" binding:"omitempty,min=1"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Role      *string `json:"role" binding:"omitempty,oneof=admin agent customer"`
}

// UpdateUser edits an account's name, email or role (admin only)
func UpdateUser(users UserEditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			req.Email = &email
		}

		user, err := users.Update(c.Request.Context(), userID, models.UserUpdate{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Role:      req.Role,
		})
		if err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
	}
}

// DeleteUser removes an account (admin only). Admin accounts cannot be
// deleted.
func DeleteUser(users UserEditor) gin.HandlerFunc {
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
		if user.Role == models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete admin users"})
			return
		}

		if err := users.Delete(c.Request.Context(), userID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
	}
}

type CreatePropertyRequest struct {
	Description string         `json:"description"`
	Address     models.Address `json:"address"`
	AgentID     *uuid.UUID     `json:"agentId"`
}

// CreateProperty lists a property and optionally assigns its agent.
// Agents creating a listing are assigned to it.
func CreateProperty(properties PropertyCreator, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		var req CreatePropertyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if strings.TrimSpace(req.Address.Street) == "" || strings.TrimSpace(req.Address.Suburb) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Street and suburb are required"})
			return
		}

		if viewer.IsAgent() {
			req.AgentID = &viewer.UserID
		} else if req.AgentID != nil {
			agent, err := users.GetByID(c.Request.Context(), *req.AgentID)
			if err != nil {
				respondError(c, err)
				return
			}
			if agent.Role != models.RoleAgent {
				c.JSON(http.StatusBadRequest, gin.H{"error": "agentId must reference an agent"})
				return
			}
		}

		p := &models.Property{Description: req.Description, Address: req.Address, AgentID: req.AgentID}
		if err := properties.Create(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create property", "details": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "data": p})
	}
}
