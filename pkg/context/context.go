package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	AgentIDKey   = ContextKey("X-Agent-Id")
	RoleKey      = ContextKey("X-Agent-Role")
	NamespaceKey = ContextKey("X-Namespace")
)

func setString(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return setString(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return setString(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return setString(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return setString(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

// SetAgentID records the authenticated agent acting on the request.
func SetAgentID(ctx context.Context, agentID string) context.Context {
	return setString(ctx, AgentIDKey, agentID)
}

func GetAgentID(ctx context.Context) string {
	return getString(ctx, AgentIDKey)
}

func SetRole(ctx context.Context, role string) context.Context {
	return setString(ctx, RoleKey, role)
}

func GetRole(ctx context.Context) string {
	return getString(ctx, RoleKey)
}

// SetNamespace records the document store namespace (dbName) used for the request.
func SetNamespace(ctx context.Context, namespace string) context.Context {
	return setString(ctx, NamespaceKey, namespace)
}

func GetNamespace(ctx context.Context) string {
	return getString(ctx, NamespaceKey)
}
