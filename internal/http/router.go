package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	CurrentStatus http.HandlerFunc
	Sessions      http.HandlerFunc
	Readings      http.HandlerFunc
	ActiveSession http.HandlerFunc
	Health        http.HandlerFunc
	ChargePointWS http.HandlerFunc
}

// NewRouter registers endpoints. The status surface may be wrapped with an
// auth middleware; the websocket endpoint and health check never are.
func NewRouter(routes Routes, statusAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	guard := func(h http.Handler) http.Handler { return h }
	if statusAuth != nil {
		guard = statusAuth
	}

	if routes.CurrentStatus != nil {
		mux.Handle("/status/current/", guard(method(http.MethodGet, routes.CurrentStatus)))
	}
	if routes.Sessions != nil {
		mux.Handle("/status/sessions/", guard(method(http.MethodGet, routes.Sessions)))
	}
	if routes.Readings != nil {
		mux.Handle("/status/meter-values/", guard(method(http.MethodGet, routes.Readings)))
	}
	if routes.ActiveSession != nil {
		mux.Handle("/status/active/", guard(method(http.MethodGet, routes.ActiveSession)))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.ChargePointWS != nil {
		mux.Handle("/ocpp/", routes.ChargePointWS)
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
