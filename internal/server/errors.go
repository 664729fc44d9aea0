package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customers"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins. Wrapped chains can match several
// sentinels, so the more specific ones come first.
var errorMappings = []errorMapping{
	{target: canvas.ErrInvalidPlaceholderKind, status: http.StatusBadRequest, code: "invalid_placeholder_kind"},
	{target: templates.ErrCorruptTemplateDocument, status: http.StatusBadRequest, code: "corrupt_template_document"},
	{target: templates.ErrUnsupportedFormatVersion, status: http.StatusBadRequest, code: "unsupported_format_version"},
	{target: pricing.ErrInvalidPricingTier, status: http.StatusBadRequest, code: "invalid_pricing_tier"},
	{target: pricing.ErrInvalidMoney, status: http.StatusBadRequest, code: "invalid_money"},
	{target: catalog.ErrInvalidQuantity, status: http.StatusBadRequest, code: "invalid_quantity"},
	{target: pricing.ErrAmountOverflow, status: http.StatusBadRequest, code: "invalid_quantity"},
	{target: catalog.ErrInvalidProduct, status: http.StatusBadRequest, code: "invalid_product"},
	{target: customization.ErrUnknownRequiredField, status: http.StatusBadRequest, code: "unknown_required_field"},
	{target: customization.ErrInvalidCustomField, status: http.StatusBadRequest, code: "invalid_custom_field"},
	{target: customization.ErrDuplicateCustomField, status: http.StatusBadRequest, code: "duplicate_custom_field"},
	{target: templates.ErrInvalidTemplate, status: http.StatusBadRequest, code: "invalid_template"},
	{target: templates.ErrInvalidCategory, status: http.StatusBadRequest, code: "invalid_category"},
	{target: templates.ErrCategoryNotFound, status: http.StatusBadRequest, code: "unknown_category"},
	{target: orders.ErrEmptyCart, status: http.StatusBadRequest, code: "empty_cart"},
	{target: templates.ErrDuplicateCategory, status: http.StatusConflict, code: "duplicate_category"},
	{target: catalog.ErrProductUnavailable, status: http.StatusConflict, code: "product_unavailable"},
	{target: orders.ErrCartChanged, status: http.StatusConflict, code: "cart_changed"},
	{target: orders.ErrInvalidStatusTransition, status: http.StatusConflict, code: "invalid_status_transition"},
	{target: templates.ErrTemplateNotFound, status: http.StatusNotFound, code: "template_not_found"},
	{target: catalog.ErrProductNotFound, status: http.StatusNotFound, code: "product_not_found"},
	{target: orders.ErrCartLineNotFound, status: http.StatusNotFound, code: "cart_line_not_found"},
	{target: orders.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found"},
	{target: customers.ErrProfileNotFound, status: http.StatusNotFound, code: "profile_not_found"},
}

type codedError interface {
	error
	Code() string
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	var missing *customization.MissingRequiredFieldError
	if errors.As(err, &missing) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_required_field", "field_ids": missing.FieldIDs})
		return
	}
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			c.JSON(mapping.status, gin.H{"error": mapping.code})
			return
		}
	}
	if errors.Is(err, context.Canceled) {
		h.logger.Info("request cancelled", zap.String("operation", operation))
		c.Status(499)
		return
	}
	var coded codedError
	if errors.As(err, &coded) {
		h.logger.Error("request failed", zap.String("operation", operation), zap.String("code", coded.Code()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": coded.Code()})
		return
	}
	h.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func respondInvalidRequest(c *gin.Context, err error) {
	if errors.Is(err, pricing.ErrInvalidMoney) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_money"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
