package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

// Envelope is the uniform response contract: every endpoint wraps its
// payload in {status, message, data, metadata}.
type Envelope struct {
	Status   string                 `json:"status"`
	Message  string                 `json:"message"`
	Data     interface{}            `json:"data,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, message string, data interface{}, pagination *models.Pagination) {
	c.Header("Cache-Control", "no-store")
	envelope := Envelope{Status: "success", Message: message, Data: data}
	if pagination != nil {
		envelope.Metadata = map[string]interface{}{
			"page":       pagination.Page,
			"size":       pagination.Size,
			"total":      pagination.Total,
			"totalPages": pagination.TotalPages(),
		}
	}
	c.JSON(status, envelope)
}

// OK responds with HTTP 200.
func OK(c *gin.Context, message string, data interface{}) {
	JSON(c, http.StatusOK, message, data, nil)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, message string, data interface{}) {
	JSON(c, http.StatusCreated, message, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.JSON(appErr.Status, Envelope{
		Status:  "error",
		Message: appErr.Message,
		Metadata: map[string]interface{}{
			"code": appErr.Code,
		},
	})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
