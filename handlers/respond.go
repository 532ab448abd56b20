package handlers

import (
	"github.com/gin-gonic/gin"
)

// respondError writes the one failure shape every endpoint uses.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}
