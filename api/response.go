package api

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// OK sends a 200 response. Slices are wrapped in {"data": [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil && reflect.ValueOf(data).Kind() == reflect.Slice {
		c.JSON(http.StatusOK, gin.H{"data": data})
		return
	}
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func abortWith(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abortWith(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	abortWith(c, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abortWith(c, http.StatusNotFound, "Not found")
}

// TooLarge sends a 413 error response.
func TooLarge(c *gin.Context, message string) {
	abortWith(c, http.StatusRequestEntityTooLarge, message)
}

// Unavailable sends a 503 error response.
func Unavailable(c *gin.Context, message string) {
	abortWith(c, http.StatusServiceUnavailable, message)
}

// InternalError sends a generic 500. The cause is logged by the caller and
// never echoed to the client.
func InternalError(c *gin.Context) {
	abortWith(c, http.StatusInternalServerError, "Internal error")
}
