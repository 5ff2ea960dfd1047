package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) List(c *gin.Context) {
	viewer, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := h.chat.ListMessages(c.Request.Context(), viewer, id, pageParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MapPage(page, func(m model.Message) messageView {
		return newMessageView(&m)
	}))
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	sender, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), sender, id, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMessageView(msg))
}
