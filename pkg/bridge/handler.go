package bridge

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultCollection = "system_logs"

	suggestionUnavailable = "The backing store is unreachable. Check the connection string and network access."
	suggestionRejected    = "Check the database name and that the bridge credentials can write to it."
)

// Handler serves the wire contract at a single POST endpoint.
type Handler struct {
	backend Backend
	logger  ectologger.Logger
}

func NewHandler(backend Backend, logger ectologger.Logger) *Handler {
	return &Handler{backend: backend, logger: logger}
}

// RegisterRoutes registers the bridge endpoint
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Handle)
	g.POST("/", h.Handle)
}

// Handle handles POST / with a docstore.Request body
func (h *Handler) Handle(c echo.Context) error {
	var req docstore.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, docstore.Response{Error: "invalid request body"})
	}

	namespace := req.DBName
	if namespace == "" {
		namespace = docstore.DefaultNamespace
	}
	collection := req.Collection
	if collection == "" {
		collection = defaultCollection
	}

	ctx, span := tracing.StartSpan(c.Request().Context(), "bridge."+string(req.Action),
		attribute.String("bridge.namespace", namespace),
		attribute.String("bridge.collection", string(collection)),
	)
	defer span.End()

	var (
		resp docstore.Response
		err  error
	)

	switch req.Action {
	case docstore.ActionPing:
		err = h.backend.Ping(ctx, namespace)
		resp.OK = err == nil
	case docstore.ActionFind:
		resp.Documents, err = h.backend.Find(ctx, namespace, collection, req.Filter)
		if resp.Documents == nil {
			resp.Documents = []docstore.Document{}
		}
	case docstore.ActionFindOne:
		var docs []docstore.Document
		docs, err = h.backend.Find(ctx, namespace, collection, req.Filter)
		if len(docs) > 0 {
			resp.Document = docs[0]
		}
	case docstore.ActionInsertOne:
		if req.Document == nil {
			return c.JSON(http.StatusBadRequest, docstore.Response{Error: "insertOne requires a document"})
		}
		resp.InsertedID, err = h.backend.InsertOne(ctx, namespace, collection, req.Document)
		resp.OK = err == nil
	case docstore.ActionUpdateOne:
		var set docstore.Document
		if req.Update != nil {
			set = req.Update.Set
		}
		var res UpdateResult
		upsert := req.Upsert == nil || *req.Upsert
		res, err = h.backend.UpdateOne(ctx, namespace, collection, req.Filter, set, upsert)
		resp.OK = err == nil
		resp.MatchedCount, resp.ModifiedCount, resp.UpsertedCount = res.Matched, res.Modified, res.Upserted
	case docstore.ActionDeleteOne:
		if len(req.Filter) == 0 {
			return c.JSON(http.StatusBadRequest, docstore.Response{Error: "deleteOne requires a filter"})
		}
		resp.DeletedCount, err = h.backend.DeleteOne(ctx, namespace, collection, req.Filter)
		resp.OK = err == nil
	case docstore.ActionDeleteMany:
		resp.DeletedCount, err = h.backend.DeleteMany(ctx, namespace, collection, req.Filter)
		resp.OK = err == nil
	default:
		return c.JSON(http.StatusBadRequest, docstore.Response{Error: "Invalid action: " + string(req.Action)})
	}

	if err != nil {
		span.RecordError(err)
		return h.fail(c, req.Action, namespace, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) fail(c echo.Context, action docstore.Action, namespace string, err error) error {
	entry := h.logger.WithContext(c.Request().Context()).WithError(err).WithFields(map[string]any{
		"action":    action,
		"namespace": namespace,
	})

	switch {
	case errors.Is(err, ErrUnavailable):
		entry.Error("backing store unavailable")
		return c.JSON(http.StatusServiceUnavailable, docstore.Response{Error: err.Error(), Suggestion: suggestionUnavailable})
	case errors.Is(err, ErrMissingID):
		entry.Warn("update rejected")
		return c.JSON(http.StatusBadRequest, docstore.Response{Error: err.Error(), Suggestion: "Send the document id in the filter or in $set."})
	default:
		entry.Error("backing store rejected request")
		return c.JSON(http.StatusInternalServerError, docstore.Response{Error: err.Error(), Suggestion: suggestionRejected})
	}
}
