package constants

// Service keys used by the route table and service registry
const (
	ServiceAuth     = "auth"
	ServiceContent  = "content"
	ServiceSearch   = "search"
	ServiceActivity = "activity"
	ServiceMedia    = "media"
)

// Headers owned by the gateway. Client-supplied values for the identity
// headers are never trusted; the gateway strips them on every request.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderRequestID = "X-Request-ID"
)
