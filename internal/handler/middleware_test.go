package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyreel-server/internal/models"
)

const testJWTSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newAuthTestRouter(t *testing.T) (*gin.Engine, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var gotUserID uuid.UUID
	router := gin.New()
	router.GET("/protected", AuthMiddleware(testJWTSecret, zap.NewNop()), func(c *gin.Context) {
		id, err := getUserIDFromContext(c)
		if err != nil {
			return
		}
		gotUserID = id
		c.Status(http.StatusOK)
	})
	return router, &gotUserID
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()

	t.Run("ValidTokenPasses", func(t *testing.T) {
		router, gotUserID := newAuthTestRouter(t)
		token := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID, *gotUserID)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		router, _ := newAuthTestRouter(t)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		router, _ := newAuthTestRouter(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		router, _ := newAuthTestRouter(t)
		token := signToken(t, "another-secret", jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		router, _ := newAuthTestRouter(t)
		token := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("NonUUIDSubject", func(t *testing.T) {
		router, _ := newAuthTestRouter(t)
		token := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub": "not-a-uuid",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"Forbidden masked as not found", models.ErrForbidden, http.StatusNotFound},
		{"Story not found", models.ErrStoryNotFound, http.StatusNotFound},
		{"Wrapped not found", fmt.Errorf("загрузка истории: %w", models.ErrSegmentNotFound), http.StatusNotFound},
		{"Active generation conflict", models.ErrUserHasActiveGeneration, http.StatusConflict},
		{"Version mismatch conflict", models.ErrVersionMismatch, http.StatusConflict},
		{"Insufficient credits", models.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"Empty script", models.ErrEmptyScript, http.StatusBadRequest},
		{"Invalid voice", models.ErrInvalidVoice, http.StatusBadRequest},
		{"Unauthorized", models.ErrUnauthorized, http.StatusUnauthorized},
		{"Unknown error is internal", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			handleServiceError(c, tc.err, zap.NewNop())

			assert.Equal(t, tc.wantStatus, w.Code)
			var apiErr APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}
