package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	directorydomain "github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/ranking"
)

// GetLeaderboard resolves the acting user from the actor_code query
// parameter and returns the weekly board within that user's scope.
func (s *Server) GetLeaderboard(c *gin.Context) {
	var query struct {
		ActorCode string `form:"actor_code"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(query.ActorCode) == "" {
		AbortWithError(c, newValidationError("actor_code", "missing_actor_code", "actor_code is required"))
		return
	}

	actor, err := s.userSvc.GetByCode(c.Request.Context(), directorydomain.GetUserByCodeRequest{
		Code: query.ActorCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.rankingSvc.Leaderboard(c.Request.Context(), ranking.LeaderboardRequest{
		Actor: actor,
		Limit: query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
