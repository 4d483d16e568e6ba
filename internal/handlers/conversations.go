package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/portal"
)

type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type UpdateStatusRequest struct {
	Status models.ConversationStatus `json:"status" validate:"required"`
}

type NamespaceRequest struct {
	Namespace string `json:"dbName" validate:"required"`
}

type StatusResponse struct {
	Status     portal.Status `json:"status"`
	Namespace  string        `json:"dbName,omitempty"`
	LastSyncAt *time.Time    `json:"lastSyncAt,omitempty"`
	Failures   int           `json:"lastSyncFailures"`
}

func (h *PortalHandler) Status(c echo.Context) error {
	resp := StatusResponse{Status: h.portal.Status(), Namespace: h.portal.Namespace()}
	if summary, at := h.portal.LastSync(); summary != nil {
		resp.LastSyncAt = &at
		resp.Failures = len(summary.Failures)
	}
	return SuccessResponse(c, resp)
}

func (h *PortalHandler) Stats(c echo.Context) error {
	ctx, span := h.begin(c, "Stats")
	defer span.End()

	stats, err := h.portal.Stats(ctx)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, stats)
}

func (h *PortalHandler) SyncNow(c echo.Context) error {
	ctx, span := h.begin(c, "SyncNow")
	defer span.End()

	if _, ok := h.portal.CurrentUser(); !ok {
		return Unauthorized("not logged in")
	}
	summary, err := h.portal.SyncNow(ctx)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, summary)
}

func (h *PortalHandler) SetNamespace(c echo.Context) error {
	ctx, span := h.begin(c, "SetNamespace")
	defer span.End()

	req, err := BindRequest[NamespaceRequest](c)
	if err != nil {
		return err
	}
	if err := h.portal.SetNamespace(ctx, req.Namespace); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ListConversations(c echo.Context) error {
	ctx, span := h.begin(c, "ListConversations")
	defer span.End()

	convs, err := h.portal.ListVisibleConversations(ctx)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, convs)
}

func (h *PortalHandler) ListMessages(c echo.Context) error {
	ctx, span := h.begin(c, "ListMessages")
	defer span.End()

	msgs, err := h.portal.ListMessages(ctx, c.Param("id"))
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, msgs)
}

// SendMessage answers 201 with the confirmed message. A platform failure answers 502 and the
// FAILED message stays in the thread.
func (h *PortalHandler) SendMessage(c echo.Context) error {
	ctx, span := h.begin(c, "SendMessage")
	defer span.End()

	req, err := BindRequest[SendMessageRequest](c)
	if err != nil {
		return err
	}
	msg, err := h.portal.SendMessage(ctx, c.Param("id"), req.Text)
	if err != nil {
		if msg.ID != "" {
			h.logger.WithContext(ctx).WithError(err).WithField("message_id", msg.ID).Warn("message send failed")
		}
		return ToHTTPError(err)
	}
	return CreatedResponse(c, msg)
}

func (h *PortalHandler) SyncConversation(c echo.Context) error {
	ctx, span := h.begin(c, "SyncConversation")
	defer span.End()

	msgs, err := h.portal.SyncConversation(ctx, c.Param("id"))
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, msgs)
}

func (h *PortalHandler) UpdateConversationStatus(c echo.Context) error {
	ctx, span := h.begin(c, "UpdateConversationStatus")
	defer span.End()

	req, err := BindRequest[UpdateStatusRequest](c)
	if err != nil {
		return err
	}
	conv, err := h.portal.UpdateConversationStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		return ToHTTPError(err)
	}
	return SuccessResponse(c, conv)
}

func (h *PortalHandler) DeleteConversation(c echo.Context) error {
	ctx, span := h.begin(c, "DeleteConversation")
	defer span.End()

	if err := h.portal.DeleteConversation(ctx, c.Param("id")); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}

func (h *PortalHandler) ClearLocalChats(c echo.Context) error {
	ctx, span := h.begin(c, "ClearLocalChats")
	defer span.End()

	if err := h.portal.ClearLocalChats(ctx); err != nil {
		return ToHTTPError(err)
	}
	return NoContentResponse(c)
}
