package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Todo API Service"

// HealthStatus is the data member of the health response.
type HealthStatus struct {
	Service   string `json:"service"   example:"Todo API Service"`
	Status    string `json:"status"    example:"UP"`
	Timestamp string `json:"timestamp" example:"2025-01-01T12:00:00.000Z"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  envelope.SuccessBody{data=handlers.HealthStatus}
// @Router      /health [get]
func Health(c *gin.Context) {
	ok(c, http.StatusOK, "Service is healthy", HealthStatus{
		Service:   ServiceName,
		Status:    "UP",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
