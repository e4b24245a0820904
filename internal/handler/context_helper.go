package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/middleware"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
	"github.com/noah-isme/ecole-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// bindJSON decodes the body into dest and writes a 400 on failure.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return &v, nil
}

func queryRole(c *gin.Context, key string) (*models.Role, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	role, ok := models.ParseRole(raw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" is not a known role")
	}
	return &role, nil
}

// queryTime accepts RFC3339 timestamps or plain dates.
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a date (YYYY-MM-DD) or RFC3339 timestamp")
}
