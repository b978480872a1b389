package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/middleware"
)

// WebSocketController exposes the live event feed. Clients subscribe per
// tenant; dashboards pass agent_id to also receive agent-directed events.
type WebSocketController struct {
	hub  application.Huber
	path string
}

func NewWebSocketController(hub application.Huber) application.Controller {
	return &WebSocketController{
		hub:  hub,
		path: "/livechat/ws",
	}
}

func (c *WebSocketController) Key() string {
	return c.path
}

func (c *WebSocketController) Register(r *mux.Router) {
	r.Handle(c.path, middleware.RequireTenant()(c.hub)).Methods(http.MethodGet)
}
