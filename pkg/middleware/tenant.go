package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/configuration"
	"github.com/omnidesk/omnidesk/pkg/httpapi"
)

// RequireTenant resolves the tenant from the configured request header.
// The fronting web layer authenticates the caller and stamps the header;
// requests without a valid tenant id are rejected before any handler runs.
func RequireTenant() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(conf.TenantIDHeader))
			if raw == "" {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_REQUIRED",
					"missing tenant header", map[string]string{"header": conf.TenantIDHeader})
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				logger := composables.UseLogger(r.Context())
				logger.WithField("tenant", raw).WithField("path", r.URL.Path).WithError(err).Warn("invalid tenant header")
				_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_INVALID",
					"invalid tenant id", map[string]string{"header": conf.TenantIDHeader})
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenantID(r.Context(), tenantID)))
		})
	}
}
