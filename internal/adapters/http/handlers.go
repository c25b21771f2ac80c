package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/chatsignal/internal/adapters/rtc"
	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/app/orch"
	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

type introspection struct {
	orch *orch.Orchestrator
	rtc  rtc.ClientConfig
}

func (h *introspection) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *introspection) members(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	members := h.orch.Rooms.MembersOf(room)
	if members == nil {
		members = []core.ConnID{}
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "members": members})
}

func (h *introspection) presence(c *gin.Context) {
	user, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conns := h.orch.Registry.Resolve(user)
	if conns == nil {
		conns = []core.ConnID{}
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":      user,
		"online":      len(conns) > 0,
		"connections": conns,
	})
}

func (h *introspection) call(c *gin.Context) {
	chat := domain.ChatID(c.Param("chatId"))
	if s, ok := h.orch.Calls.Get(chat); ok {
		c.JSON(http.StatusOK, s)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chat, "phase": call.Idle})
}

func (h *introspection) rtcConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.rtc)
}
