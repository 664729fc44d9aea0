package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(router *gin.Engine, origin string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodOptions, "/cart", http.NoBody)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)
	request.Header.Set("Access-Control-Request-Headers", "Content-Type")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestCORSMiddlewareAllowsCredentialedCartRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware(nil))
	router.OPTIONS("/cart", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	recorder := preflight(router, "https://shop.example.com")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://shop.example.com" {
		t.Fatalf("expected origin to be echoed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPut) {
		t.Fatalf("expected PUT to be allowed, got %q", recorder.Header().Get("Access-Control-Allow-Methods"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSMiddlewareRestrictsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware([]string{"https://shop.example.com"}))
	router.OPTIONS("/cart", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if recorder := preflight(router, "https://shop.example.com"); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected allowed origin to pass, got %d", recorder.Code)
	}
	if recorder := preflight(router, "https://evil.example.com"); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected foreign origin to be rejected, got %d", recorder.Code)
	}
}
