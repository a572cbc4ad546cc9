package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// Created writes a 201 response for a newly registered resource.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// Accepted writes a 202 response for work that continues in the background.
// Clients poll the resource at location for the outcome.
func Accepted(c *gin.Context, location string, payload interface{}) {
	if location != "" {
		c.Header("Location", location)
	}
	JSON(c, http.StatusAccepted, payload)
}
