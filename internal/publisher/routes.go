package publisher

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/content"
	"github.com/tyemirov/postbot/internal/credstore"
	"github.com/tyemirov/postbot/internal/platform"
)

var publishErrorCodes = []error{
	authflow.ErrNotAuthorized,
	authflow.ErrRefreshFailed,
	content.ErrGenerationFailed,
	content.ErrEmptyContent,
	platform.ErrSubmitFailed,
	credstore.ErrStorage,
}

// MountPostRoutes registers GET and POST /post behind the supplied guards.
func MountPostRoutes(router gin.IRouter, publisher *Publisher, guards ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc(nil), guards...), func(contextGin *gin.Context) {
		result, publishErr := publisher.Publish(contextGin.Request.Context())
		if publishErr != nil {
			status := http.StatusInternalServerError
			if errors.Is(publishErr, authflow.ErrNotAuthorized) {
				status = http.StatusBadRequest
			}
			contextGin.AbortWithStatusJSON(status, gin.H{"error": publishErrorCode(publishErr)})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"text": result.Text,
			"post": result.Post,
		})
	})
	router.GET("/post", handlers...)
	router.POST("/post", handlers...)
}

func publishErrorCode(err error) string {
	for _, sentinel := range publishErrorCodes {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}
