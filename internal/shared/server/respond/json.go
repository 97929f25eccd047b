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

// Created writes a 201 response for a newly minted resource.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// WithEffects pairs a command result with the events and payouts it emitted.
// key names the result field, e.g. "pool" or "application".
func WithEffects(key string, result, effects interface{}) gin.H {
	return gin.H{key: result, "effects": effects}
}
