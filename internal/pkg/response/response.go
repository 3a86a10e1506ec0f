package response

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
	c.Abort()
}

// Blob writes raw bytes. A non-empty name is sent as an inline filename.
func Blob(c *gin.Context, contentType string, name string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if name != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	}
	c.Header("Cache-Control", "private, no-cache")
	c.Header("Content-Length", fmt.Sprint(len(data)))
	c.Data(http.StatusOK, contentType, data)
}
