package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/utils"
)

// InternalOnly restricts operator endpoints (readiness, metrics) to the
// networks in allowed, given as addresses or CIDR prefixes. An empty or
// unparsable list disables the check.
//
// Example: InternalOnly([]string{"10.0.0.0/8", "127.0.0.1"}, false, log)
func InternalOnly(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	log = log.Component("access")
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("no operator networks configured, endpoints are open")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			log.Debug("operator endpoint refused",
				logger.String("ip", ip),
				logger.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","reason":"operator endpoint"}` + "\n"))
		})
	}
}
