package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
)

type cartLineRequestPayload struct {
	ProductID      string                        `json:"productId"`
	Quantity       int                           `json:"quantity"`
	TemplateID     string                        `json:"templateId"`
	RequiredFields []customization.RequiredField `json:"requiredFields"`
	CustomFields   []customization.CustomField   `json:"customFields"`
	Description    string                        `json:"description"`
	Preview        string                        `json:"preview"`
}

type statusRequestPayload struct {
	Status string `json:"status"`
}

func lineInput(request cartLineRequestPayload) orders.LineInput {
	return orders.LineInput{
		ProductID:    request.ProductID,
		Quantity:     request.Quantity,
		TemplateID:   request.TemplateID,
		Answers:      request.RequiredFields,
		CustomFields: request.CustomFields,
		Description:  request.Description,
		Preview:      request.Preview,
	}
}

func (h *httpHandler) handleListCart(c *gin.Context) {
	lines, err := h.orders.ListCart(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, "list_cart", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

func (h *httpHandler) handleAddCartLine(c *gin.Context) {
	var request cartLineRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	line, err := h.orders.AddLine(c.Request.Context(), customerID(c), lineInput(request))
	if err != nil {
		h.respondError(c, "add_cart_line", err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *httpHandler) handleUpdateCartLine(c *gin.Context) {
	var request cartLineRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	line, err := h.orders.UpdateLine(c.Request.Context(), customerID(c), c.Param("lineID"), lineInput(request))
	if err != nil {
		h.respondError(c, "update_cart_line", err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *httpHandler) handleRemoveCartLine(c *gin.Context) {
	if err := h.orders.RemoveLine(c.Request.Context(), customerID(c), c.Param("lineID")); err != nil {
		h.respondError(c, "remove_cart_line", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePlaceOrder(c *gin.Context) {
	order, err := h.orders.PlaceOrder(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, "place_order", err)
		return
	}
	h.realtime.Publish(newOrderMessage(RealtimeEventOrderPlaced, order))
	c.JSON(http.StatusCreated, order)
}

func (h *httpHandler) handleListOrders(c *gin.Context) {
	placed, err := h.orders.ListOrders(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, "list_orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": placed})
}

func (h *httpHandler) handleGetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_order", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *httpHandler) handleAdvanceOrderStatus(c *gin.Context) {
	var request statusRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	status, err := orders.ParseStatus(request.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	order, err := h.orders.AdvanceStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.respondError(c, "advance_order_status", err)
		return
	}
	h.realtime.Publish(newOrderMessage(RealtimeEventOrderStatus, order))
	c.JSON(http.StatusOK, order)
}
