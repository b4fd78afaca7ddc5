package handler

import (
	"net/http"
	"strconv"
	"strings"

	"carelink/internal/middleware"
	"carelink/internal/service"
	"carelink/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	uploadRoot     = "CareLink"
	maxUploadBytes = 25 << 20
)

type UploadHandler struct {
	cloud     cloudinary.Client
	messaging *service.MessagingService
}

func NewUploadHandler(cloud cloudinary.Client, messaging *service.MessagingService) *UploadHandler {
	return &UploadHandler{cloud: cloud, messaging: messaging}
}

// UploadChatMedia stores an image or video for a conversation the caller
// takes part in and returns its URL for use as a message's media_url.
func (h *UploadHandler) UploadChatMedia(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}
	actor := middleware.GetActor(c)
	convID, err := strconv.ParseUint(c.PostForm("conversation_id"), 10, 64)
	if err != nil || convID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id required"})
		return
	}
	conv, err := h.messaging.Conversation(c.Request.Context(), actor, uint(convID))
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	kind := cloudinary.KindForContentType(file.Header.Get("Content-Type"))
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only images and videos are accepted"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	publicID := kind[:3] + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	att, err := h.cloud.UploadAttachment(c.Request.Context(), f, kind, cloudinary.ChatFolder(uploadRoot, conv.ID), publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, att)
}
