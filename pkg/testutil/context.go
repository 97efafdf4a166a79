package testutil

import (
	"net/http"

	"pawnval/pkg/requestcontext"
)

// WithTenant adds a tenant to the request context, as the tenant middleware
// would for a request carrying X-Tenant-ID.
func WithTenant(req *http.Request, tenant string) *http.Request {
	return req.WithContext(requestcontext.WithTenantID(req.Context(), tenant))
}
