package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/pricing"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

type categoryRequestPayload struct {
	Name string `json:"name"`
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

func newCategoryPayload(category templates.Category) categoryPayload {
	return categoryPayload{ID: category.CategoryID, Name: category.Name, CreatedAt: category.CreatedAtSeconds}
}

type templateRequestPayload struct {
	Name       string          `json:"name"`
	CategoryID string          `json:"categoryId"`
	Elements   json.RawMessage `json:"elements"`
	Preview    string          `json:"preview"`
}

func (p templateRequestPayload) input() templates.TemplateInput {
	return templates.TemplateInput{
		Name:       p.Name,
		CategoryID: p.CategoryID,
		Elements:   p.Elements,
		Preview:    p.Preview,
	}
}

type templatePayload struct {
	ID             string                        `json:"id"`
	Name           string                        `json:"name"`
	CategoryID     string                        `json:"categoryId"`
	Preview        string                        `json:"preview"`
	Elements       json.RawMessage               `json:"elements"`
	RequiredFields []customization.RequiredField `json:"requiredFields"`
}

func newTemplatePayload(document templates.Document) (templatePayload, error) {
	encoded, err := templates.EncodeElements(document.Elements)
	if err != nil {
		return templatePayload{}, err
	}
	return templatePayload{
		ID:             document.ID,
		Name:           document.Name,
		CategoryID:     document.CategoryID,
		Preview:        document.Preview,
		Elements:       encoded,
		RequiredFields: templates.ResolveRequiredFields(document.Elements),
	}, nil
}

type productRequestPayload struct {
	Name      string         `json:"name"`
	BasePrice pricing.Money  `json:"basePrice"`
	Tiers     []pricing.Tier `json:"tiers"`
}

type tiersRequestPayload struct {
	Tiers []pricing.Tier `json:"tiers"`
}

type previewRequestPayload struct {
	TemplateID     string                        `json:"templateId"`
	RequiredFields []customization.RequiredField `json:"requiredFields"`
	CustomFields   []customization.CustomField   `json:"customFields"`
	Description    string                        `json:"description"`
}

type previewResponsePayload struct {
	Preview     string `json:"preview"`
	ContentType string `json:"contentType"`
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	var request categoryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	category, err := h.templates.CreateCategory(c.Request.Context(), request.Name)
	if err != nil {
		h.respondError(c, "create_category", err)
		return
	}
	c.JSON(http.StatusCreated, newCategoryPayload(category))
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.templates.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_categories", err)
		return
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, newCategoryPayload(category))
	}
	c.JSON(http.StatusOK, gin.H{"categories": payload})
}

func (h *httpHandler) handleCreateTemplate(c *gin.Context) {
	var request templateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	document, err := h.templates.CreateTemplate(c.Request.Context(), request.input())
	if err != nil {
		h.respondError(c, "create_template", err)
		return
	}
	h.respondTemplate(c, http.StatusCreated, document)
}

func (h *httpHandler) handleUpdateTemplate(c *gin.Context) {
	var request templateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	document, err := h.templates.UpdateTemplate(c.Request.Context(), c.Param("id"), request.input())
	if err != nil {
		h.respondError(c, "update_template", err)
		return
	}
	h.respondTemplate(c, http.StatusOK, document)
}

func (h *httpHandler) handleDeleteTemplate(c *gin.Context) {
	if err := h.templates.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "delete_template", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListTemplates(c *gin.Context) {
	summaries, err := h.templates.ListTemplates(c.Request.Context(), c.Query("categoryId"))
	if err != nil {
		h.respondError(c, "list_templates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": summaries})
}

func (h *httpHandler) handleGetTemplate(c *gin.Context) {
	document, err := h.templates.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_template", err)
		return
	}
	h.respondTemplate(c, http.StatusOK, document)
}

func (h *httpHandler) handleRequiredFields(c *gin.Context) {
	fields, err := h.templates.RequiredFields(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "required_fields", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requiredFields": fields})
}

func (h *httpHandler) respondTemplate(c *gin.Context, status int, document templates.Document) {
	payload, err := newTemplatePayload(document)
	if err != nil {
		h.respondError(c, "encode_template", err)
		return
	}
	c.JSON(status, payload)
}

func (h *httpHandler) handleCreateProduct(c *gin.Context) {
	var request productRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), catalog.ProductInput{
		Name:      request.Name,
		BasePrice: request.BasePrice,
		Tiers:     request.Tiers,
	})
	if err != nil {
		h.respondError(c, "create_product", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *httpHandler) handleReplaceTiers(c *gin.Context) {
	var request tiersRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	product, err := h.catalog.ReplaceTiers(c.Request.Context(), c.Param("id"), request.Tiers)
	if err != nil {
		h.respondError(c, "replace_tiers", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *httpHandler) handleListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *httpHandler) handleGetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *httpHandler) handleQuote(c *gin.Context) {
	quantity, err := strconv.Atoi(strings.TrimSpace(c.Query("quantity")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
		return
	}
	quote, err := h.catalog.Quote(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		h.respondError(c, "quote", err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *httpHandler) handleRenderPreview(c *gin.Context) {
	var request previewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	image, err := h.previews.Render(c.Request.Context(), customization.Input{
		TemplateID:   request.TemplateID,
		Answers:      request.RequiredFields,
		CustomFields: request.CustomFields,
		Description:  request.Description,
	})
	if err != nil {
		h.respondError(c, "render_preview", err)
		return
	}
	c.JSON(http.StatusOK, previewResponsePayload{Preview: image.DataURI(), ContentType: image.ContentType})
}
