// Package common holds the JSON response envelope shared by all
// handlers.
package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every API endpoint returns.
type Response struct {
	Status string      `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, httpStatus int, status, message string, data interface{}) {
	c.JSON(httpStatus, Response{
		Status: status,
		Msg:    message,
		Data:   data,
	})
}

// RespondSuccess sends a 200 with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", "", data)
}

// RespondSuccessMessage sends a 200 with a message and data.
func RespondSuccessMessage(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, "success", message, data)
}

// RespondError sends an error status with a message.
func RespondError(c *gin.Context, httpStatus int, message string) {
	respond(c, httpStatus, "error", message, nil)
}
