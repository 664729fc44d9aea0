package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

type stubCodedError struct{}

func (stubCodedError) Error() string { return "orders.place_order.order_insert_failed: disk full" }
func (stubCodedError) Code() string  { return "orders.place_order.order_insert_failed" }

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "placeholder kind inside corrupt document", err: fmt.Errorf("%w: object 0: %w", templates.ErrCorruptTemplateDocument, canvas.ErrInvalidPlaceholderKind), status: http.StatusBadRequest, code: "invalid_placeholder_kind"},
		{name: "corrupt document", err: templates.ErrCorruptTemplateDocument, status: http.StatusBadRequest, code: "corrupt_template_document"},
		{name: "quantity", err: fmt.Errorf("%w: 0", catalog.ErrInvalidQuantity), status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "cart changed", err: orders.ErrCartChanged, status: http.StatusConflict, code: "cart_changed"},
		{name: "order missing", err: orders.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found"},
		{name: "service error", err: stubCodedError{}, status: http.StatusInternalServerError, code: "internal_error"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			handler := &httpHandler{logger: zap.NewNop()}
			handler.respondError(ctx, "test", tt.err)

			if recorder.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, recorder.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tt.code {
				t.Fatalf("expected error %q, got %v", tt.code, body["error"])
			}
		})
	}
}

func TestRespondErrorReportsMissingFieldIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	handler := &httpHandler{logger: zap.NewNop()}

	err := fmt.Errorf("line line-1: %w", &customization.MissingRequiredFieldError{FieldIDs: []string{"field-a", "field-b"}})
	handler.respondError(ctx, "place_order", err)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	var body struct {
		Error    string   `json:"error"`
		FieldIDs []string `json:"field_ids"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "missing_required_field" || len(body.FieldIDs) != 2 || body.FieldIDs[1] != "field-b" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRespondErrorExposesServiceErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := &httpHandler{logger: zap.New(core)}

	handler.respondError(ctx, "place_order", fmt.Errorf("wrapped: %w", stubCodedError{}))

	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != "orders.place_order.order_insert_failed" {
		t.Fatalf("expected service code in body, got %v", body)
	}
	if logs.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected the failure to be logged once, got %d", logs.Len())
	}
}
