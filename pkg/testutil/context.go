package testutil

import (
	"net/http"

	id "safecircle/pkg/domain"
	"safecircle/pkg/requestcontext"
)

// WithUserID puts userID on the request context the way the auth middleware
// does, for handlers exercised without it.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithBearer sets the Authorization header for routes behind RequireAuth.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
