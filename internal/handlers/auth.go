package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	Agent models.Agent `json:"agent"`
}

func (h *PortalHandler) Login(c echo.Context) error {
	ctx, span := h.begin(c, "Login")
	defer span.End()

	req, err := BindRequest[LoginRequest](c)
	if err != nil {
		return err
	}
	agent, token, err := h.portal.Login(ctx, req.Email, req.Password)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, LoginResponse{Token: token, Agent: agent})
}

func (h *PortalHandler) Logout(c echo.Context) error {
	ctx, span := h.begin(c, "Logout")
	defer span.End()

	if err := h.portal.Logout(ctx); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) Me(c echo.Context) error {
	agent, ok := h.portal.CurrentUser()
	if !ok {
		return Unauthorized("not logged in")
	}
	return SuccessResponse(c, agent)
}
