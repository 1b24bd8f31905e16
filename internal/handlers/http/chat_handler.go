package http

import (
	"net/http"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves chat history and the presence list.
type ChatHandler struct {
	chat  *services.ChatService
	admin *services.AdminService
	auth  services.AuthService
}

func NewChatHandler(chat *services.ChatService, admin *services.AdminService, auth services.AuthService) *ChatHandler {
	return &ChatHandler{chat: chat, admin: admin, auth: auth}
}

func (h *ChatHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/chat/messages", h.ListMessages)
		api.GET("/connected-users",
			middleware.AuthMiddleware(h.auth),
			middleware.RequireRole(domain.RoleModerator),
			h.ConnectedUsers,
		)
	}
}

// ListMessages returns history newest first. streamKey filters by room.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		fail(c, err)
		return
	}
	key := domain.StreamKey(c.Query("streamKey"))

	msgs, err := h.chat.History(c.Request.Context(), key, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]domain.PublicChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.Public()
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": out,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *ChatHandler) ConnectedUsers(c *gin.Context) {
	users := h.admin.ConnectedUsers(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}
