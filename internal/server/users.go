package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	directorydomain "github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/pkg/db/pagination"
)

type registerUserRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	InvitationCode string `json:"invitation_code"`
	City           string `json:"city"`
	Neighborhood   string `json:"neighborhood"`
	Gender         string `json:"gender"`
}

func (s *Server) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.userSvc.Register(c.Request.Context(), directorydomain.RegisterUserRequest{
		Name:           req.Name,
		Phone:          req.Phone,
		InvitationCode: req.InvitationCode,
		City:           req.City,
		Neighborhood:   req.Neighborhood,
		Gender:         req.Gender,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type completeQuestionnaireRequest struct {
	Email            string `json:"email"`
	Birthdate        string `json:"birthdate"`
	PrimaryConcern   string `json:"primary_concern"`
	SecondaryConcern string `json:"secondary_concern"`
}

func (s *Server) CompleteQuestionnaire(c *gin.Context) {
	var req completeQuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.userSvc.CompleteQuestionnaire(c.Request.Context(), directorydomain.CompleteQuestionnaireRequest{
		Code:             c.Param("code"),
		Email:            req.Email,
		Birthdate:        req.Birthdate,
		PrimaryConcern:   req.PrimaryConcern,
		SecondaryConcern: req.SecondaryConcern,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUsers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Role      string `form:"role"`
		City      string `form:"city"`
		Completed string `form:"completed"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := directorydomain.ListUserRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Role:      query.Role,
		City:      query.City,
	}
	if raw := strings.TrimSpace(query.Completed); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("completed", "invalid_completed", "invalid completed"))
			return
		}
		req.Completed = &completed
	}

	resp, err := s.userSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUserByID(c *gin.Context) {
	resp, err := s.userSvc.GetByID(c.Request.Context(), directorydomain.GetUserRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetUserNetwork reports both depth figures side by side: the shallow
// two-level count and the full transitive one, plus the cached value.
func (s *Server) GetUserNetwork(c *gin.Context) {
	user, err := s.userSvc.GetByID(c.Request.Context(), directorydomain.GetUserRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	direct, err := s.traverser.DirectGuests(ctx, &user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	twoLevel, err := s.traverser.TwoLevelCount(ctx, &user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	transitive, err := s.traverser.TransitiveCount(ctx, &user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id":          user.ID,
		"direct_guests":    len(direct),
		"two_level_count":  twoLevel,
		"transitive_count": transitive,
		"cached_count":     user.TotalNetworkCount,
	}})
}
