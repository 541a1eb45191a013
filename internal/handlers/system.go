package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const APIVersion = "1.0.0"

// Banner identifies the service at the root path.
func Banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Task Management REST API",
		"version": APIVersion,
	})
}
