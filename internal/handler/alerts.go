package handlers

import (
	"net/http"
	"time"

	"HibiscusGuard/internal/models"
	"HibiscusGuard/pkg/errors"
	"HibiscusGuard/pkg/location"
	"HibiscusGuard/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateAlert 触发接口：手动按钮、穿戴设备桥接、传感器走这里
func (h *Handlers) CreateAlert(c *gin.Context) {
	var req struct {
		OwnerID     string           `json:"ownerId" binding:"required"`
		TriggerKind string           `json:"triggerKind" binding:"required"`
		Location    *models.Location `json:"location"`
		EvidenceRef string           `json:"evidenceRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.coord.TriggerAlert(c.Request.Context(), req.OwnerID,
		models.TriggerKind(req.TriggerKind), req.Location, c.ClientIP(), req.EvidenceRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// VoiceTrigger 语音触发接口：带候选假设的识别文本
// 未命中关键词不是错误，返回 matched=false
func (h *Handlers) VoiceTrigger(c *gin.Context) {
	var req struct {
		OwnerID      string   `json:"ownerId" binding:"required"`
		Session      string   `json:"session" binding:"required"`
		Utterance    string   `json:"utterance" binding:"required"`
		Alternatives []string `json:"alternatives"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.coord.HandleUtterance(c.Request.Context(), req.OwnerID, req.Session,
		req.Utterance, req.Alternatives, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if alert == nil {
		response.Success(c, "no distress match", gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"matched": true, "alert": alert})
}

// ResolveAlert 解除接口；幂等，重复调用一律成功
func (h *Handlers) ResolveAlert(c *gin.Context) {
	var req struct {
		ResolvedBy string `json:"resolvedBy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.coord.ResolveAlert(c.Request.Context(), c.Param("id"), req.ResolvedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "alert resolved", alert)
}

// GetAlert 查询单条警报
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.store.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithCode(c, errors.CodeAlertNotFound, "alert not found")
		return
	}
	response.Success(c, "get alert", alert)
}

// ListAlerts 查询警报列表
func (h *Handlers) ListAlerts(c *gin.Context) {
	includeResolved := c.Query("all") == "1"
	alerts, err := h.store.ListAlerts(c.Request.Context(), c.Query("owner"), includeResolved)
	if err != nil {
		response.Fail(c, "can not list alerts", nil)
		return
	}
	response.Success(c, "list alerts", alerts)
}

// UploadEvidence 上传证据（音频/视频）到对象存储并登记引用
func (h *Handlers) UploadEvidence(c *gin.Context) {
	kind := c.Query("kind")
	if kind != "audio" && kind != "video" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audio or video"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	ext := "webm"
	if kind == "audio" {
		ext = "ogg"
	}
	key := h.evidence.ObjectKey(c.Param("id"), kind, ext)
	url, err := h.evidence.Put(c.Request.Context(), key, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		response.FailWithCode(c, errors.GetCode(err), err.Error())
		return
	}

	if err := h.coord.ConfirmEvidence(c.Request.Context(), c.Param("id"), kind, url); err != nil {
		response.Fail(c, "evidence not recorded", nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ref": url})
}

// AlertEvents 警报事件流；观看页订阅状态与位置变化
func (h *Handlers) AlertEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.GetAlert(c.Request.Context(), id); err != nil {
		response.FailWithCode(c, errors.CodeAlertNotFound, "alert not found")
		return
	}
	h.events.Serve(c, id)
}

// ReportLocation 设备位置上报
func (h *Handlers) ReportLocation(c *gin.Context) {
	var req struct {
		OwnerID  string  `json:"ownerId" binding:"required"`
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
		Accuracy float64 `json:"accuracy"`
		Address  string  `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.loc.Report(req.OwnerID, location.Fix{
		Lat:       req.Lat,
		Lng:       req.Lng,
		Accuracy:  req.Accuracy,
		Address:   req.Address,
		Timestamp: time.Now(),
	})
	response.Success(c, "location reported", nil)
}
