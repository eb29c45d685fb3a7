package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetNotifications returns the latest notifications of the caller and the
// unread count.
func (h *Handler) GetNotifications(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	inbox, err := h.Notifications.List(c.Request.Context(), actor.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), actor.UserID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), actor.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": n})
}
