package middleware

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit throttles requests per station session, falling back to client
// IP for unauthenticated calls. rate uses the limiter format, e.g. "60-M".
func RateLimit(rate string) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	instance := limiter.New(memory.NewStore(), r)

	mw := stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(func(req *http.Request) string {
			if claims := ClaimsFromContext(req.Context()); claims != nil {
				return "session:" + claims.SessionID.String()
			}
			return "ip:" + instance.GetIPKey(req)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		}),
	)
	return mw.Handler, nil
}
