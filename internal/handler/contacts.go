package handlers

import (
	"net/http"

	"HibiscusGuard/internal/models"
	"HibiscusGuard/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SaveContact 新建或更新紧急联系人
func (h *Handlers) SaveContact(c *gin.Context) {
	var req struct {
		ID       string `json:"id"`
		OwnerID  string `json:"ownerId" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Phone    string `json:"phone" binding:"required"`
		WhatsApp string `json:"whatsapp"`
		Email    string `json:"email"`
		Active   *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := &models.EmergencyContact{
		ID:       req.ID,
		OwnerID:  req.OwnerID,
		Name:     req.Name,
		Phone:    req.Phone,
		WhatsApp: req.WhatsApp,
		Email:    req.Email,
		Active:   true,
	}
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if req.Active != nil {
		contact.Active = *req.Active
	}

	if err := h.store.SaveContact(c.Request.Context(), contact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "contact saved", contact)
}

// ListContacts 查询某用户当前活跃的联系人
func (h *Handlers) ListContacts(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	contacts, err := h.store.ListActiveContacts(c.Request.Context(), owner)
	if err != nil {
		response.Fail(c, "can not list contacts", nil)
		return
	}
	response.Success(c, "list contacts", contacts)
}
