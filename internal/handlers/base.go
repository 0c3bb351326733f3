package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz reports that the process is serving.
func Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// jobResponse writes the summary of an admin job. The endpoints always
// answer 200; failures are reported in the body.
func jobResponse(c *gin.Context, message string) {
	c.String(http.StatusOK, message)
}
