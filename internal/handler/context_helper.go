package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openacad/sis-api/internal/middleware"
	"github.com/openacad/sis-api/internal/models"
)

// claimsFromContext returns the authenticated caller's claims, or nil
// on routes where the JWT middleware did not run.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	v, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*models.JWTClaims)
	return claims
}
