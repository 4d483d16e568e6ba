package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/portal"
)

type AddAgentRequest struct {
	Name     string      `json:"name" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required"`
	Role     models.Role `json:"role"`
	Avatar   string      `json:"avatar"`
}

type CredentialRequest struct {
	Password string `json:"password" validate:"required"`
}

type RoleRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

type PresenceRequest struct {
	Status models.Presence `json:"status" validate:"required"`
}

type ImportPagesRequest struct {
	UserToken string `json:"userToken" validate:"required"`
}

type VerifyPageResponse struct {
	PageID    string `json:"pageId"`
	Connected bool   `json:"connected"`
}

type AddLinkRequest struct {
	Title    string `json:"title" validate:"required"`
	URL      string `json:"url" validate:"required"`
	Category string `json:"category"`
}

type AddMediaRequest struct {
	Title    string `json:"title" validate:"required"`
	URL      string `json:"url" validate:"required"`
	Category string `json:"category"`
}

func (h *PortalHandler) ListAgents(c echo.Context) error {
	return SuccessResponse(c, h.portal.ListAgents())
}

func (h *PortalHandler) AddAgent(c echo.Context) error {
	ctx, span := h.begin(c, "AddAgent")
	defer span.End()

	req, err := BindRequest[AddAgentRequest](c)
	if err != nil {
		return err
	}
	agent, err := h.portal.AddAgent(ctx, portal.NewAgent{
		Name:       req.Name,
		Email:      req.Email,
		Credential: req.Password,
		Role:       req.Role,
		Avatar:     req.Avatar,
	})
	if err != nil {
		return ToHTTPError(err)
	}
	return CreatedResponse(c, agent)
}

func (h *PortalHandler) RemoveAgent(c echo.Context) error {
	ctx, span := h.begin(c, "RemoveAgent")
	defer span.End()

	if err := h.portal.RemoveAgent(ctx, c.Param("id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ChangeCredential(c echo.Context) error {
	ctx, span := h.begin(c, "ChangeCredential")
	defer span.End()

	req, err := BindRequest[CredentialRequest](c)
	if err != nil {
		return err
	}
	if err := h.portal.ChangeCredential(ctx, c.Param("id"), req.Password); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ChangeRole(c echo.Context) error {
	ctx, span := h.begin(c, "ChangeRole")
	defer span.End()

	req, err := BindRequest[RoleRequest](c)
	if err != nil {
		return err
	}
	agent, err := h.portal.ChangeRole(ctx, c.Param("id"), req.Role)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, agent)
}

func (h *PortalHandler) SetPresence(c echo.Context) error {
	ctx, span := h.begin(c, "SetPresence")
	defer span.End()

	req, err := BindRequest[PresenceRequest](c)
	if err != nil {
		return err
	}
	agent, err := h.portal.SetPresence(ctx, req.Status)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, agent)
}

func (h *PortalHandler) ListPages(c echo.Context) error {
	return SuccessResponse(c, h.portal.ListPages())
}

func (h *PortalHandler) ImportPages(c echo.Context) error {
	ctx, span := h.begin(c, "ImportPages")
	defer span.End()

	req, err := BindRequest[ImportPagesRequest](c)
	if err != nil {
		return err
	}
	pages, err := h.portal.ImportPages(ctx, req.UserToken)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, pages)
}

func (h *PortalHandler) RemovePage(c echo.Context) error {
	ctx, span := h.begin(c, "RemovePage")
	defer span.End()

	if err := h.portal.RemovePage(ctx, c.Param("id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) VerifyPage(c echo.Context) error {
	ctx, span := h.begin(c, "VerifyPage")
	defer span.End()

	pageID := c.Param("id")
	ok, err := h.portal.VerifyPage(ctx, pageID)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, VerifyPageResponse{PageID: pageID, Connected: ok})
}

func (h *PortalHandler) AssignAgent(c echo.Context) error {
	ctx, span := h.begin(c, "AssignAgent")
	defer span.End()

	if err := h.portal.AssignAgentToPage(ctx, c.Param("id"), c.Param("agent_id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) UnassignAgent(c echo.Context) error {
	ctx, span := h.begin(c, "UnassignAgent")
	defer span.End()

	if err := h.portal.UnassignAgentFromPage(ctx, c.Param("id"), c.Param("agent_id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ListLinks(c echo.Context) error {
	return SuccessResponse(c, h.portal.ListApprovedLinks())
}

func (h *PortalHandler) AddLink(c echo.Context) error {
	ctx, span := h.begin(c, "AddLink")
	defer span.End()

	req, err := BindRequest[AddLinkRequest](c)
	if err != nil {
		return err
	}
	link, err := h.portal.AddApprovedLink(ctx, models.ApprovedLink{Title: req.Title, URL: req.URL, Category: req.Category})
	if err != nil {
		return ToHTTPError(err)
	}
	return CreatedResponse(c, link)
}

func (h *PortalHandler) RemoveLink(c echo.Context) error {
	ctx, span := h.begin(c, "RemoveLink")
	defer span.End()

	if err := h.portal.RemoveApprovedLink(ctx, c.Param("id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ListMedia(c echo.Context) error {
	return SuccessResponse(c, h.portal.ListApprovedMedia())
}

func (h *PortalHandler) AddMedia(c echo.Context) error {
	ctx, span := h.begin(c, "AddMedia")
	defer span.End()

	req, err := BindRequest[AddMediaRequest](c)
	if err != nil {
		return err
	}
	media, err := h.portal.AddApprovedMedia(ctx, models.ApprovedMedia{Title: req.Title, URL: req.URL, Category: req.Category})
	if err != nil {
		return ToHTTPError(err)
	}
	return CreatedResponse(c, media)
}

func (h *PortalHandler) RemoveMedia(c echo.Context) error {
	ctx, span := h.begin(c, "RemoveMedia")
	defer span.End()

	if err := h.portal.RemoveApprovedMedia(ctx, c.Param("id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}
