package authflow

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/postbot/internal/credstore"
	"github.com/tyemirov/postbot/internal/platform"
	"go.uber.org/zap"
)

// IdentityResolver looks up the account behind a freshly issued access token.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, accessToken string) (platform.Identity, error)
}

const internalErrorCode = "internal_error"

var callbackClientErrors = []error{
	ErrMissingParameter,
	ErrNoPendingAuthorization,
	ErrStateMismatch,
	ErrAuthorizationDenied,
}

var callbackServerErrors = []error{
	ErrTokenExchangeFailed,
	ErrNoRefreshTokenIssued,
	credstore.ErrStorage,
}

// MountAuthRoutes registers /auth and /callback. identities may be nil.
func MountAuthRoutes(router gin.IRouter, controller *Controller, identities IdentityResolver, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/auth", func(contextGin *gin.Context) {
		consentURL, issueErr := controller.IssueLink(contextGin.Request.Context())
		if issueErr != nil {
			logger.Error("authorization link failed", zap.String("code", "authflow.link.failed"), zap.Error(issueErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorCode(issueErr, callbackServerErrors, internalErrorCode)})
			return
		}
		contextGin.Redirect(http.StatusFound, consentURL)
	})

	router.GET("/callback", func(contextGin *gin.Context) {
		if providerError := strings.TrimSpace(contextGin.Query("error")); providerError != "" {
			logger.Warn("authorization denied by provider", zap.String("code", "authflow.callback.denied"), zap.String("provider_error", providerError))
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":       ErrAuthorizationDenied.Error(),
				"description": contextGin.Query("error_description"),
			})
			return
		}

		pair, callbackErr := controller.HandleCallback(contextGin.Request.Context(), contextGin.Query("state"), contextGin.Query("code"))
		if callbackErr != nil {
			if code := errorCode(callbackErr, callbackClientErrors, ""); code != "" {
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
				return
			}
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorCode(callbackErr, callbackServerErrors, internalErrorCode)})
			return
		}

		response := gin.H{"status": "authorized"}
		if identities != nil {
			identity, identityErr := identities.ResolveIdentity(contextGin.Request.Context(), pair.AccessToken)
			if identityErr != nil {
				logger.Warn("identity lookup failed", zap.String("code", "authflow.callback.identity_failed"), zap.Error(identityErr))
			} else {
				response["identity"] = identity
			}
		}
		contextGin.JSON(http.StatusOK, response)
	})
}

// errorCode returns the text of the first sentinel err matches, or fallback.
func errorCode(err error, sentinels []error, fallback string) string {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return fallback
}
