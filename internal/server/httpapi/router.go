package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/plateful/plateful/internal/logging"
)

// NewRouter assembles the API. Auth endpoints are public; every record
// endpoint sits behind the bearer-token middleware.
func NewRouter(records *RecordHandler, auth *AuthHandler, tokens TokenValidator, log logging.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggerMiddleware(log))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", auth.Login).Methods(http.MethodPost)

	protected := api.PathPrefix("/{collection:entities|curations}").Subrouter()
	protected.Use(AuthMiddleware(tokens))

	protected.HandleFunc("", records.List).Methods(http.MethodGet)
	protected.HandleFunc("", records.Create).Methods(http.MethodPost)
	protected.HandleFunc("/{id}", records.Get).Methods(http.MethodGet)
	protected.HandleFunc("/{id}", records.Update).Methods(http.MethodPatch)
	protected.HandleFunc("/{id}", records.Delete).Methods(http.MethodDelete)

	return r
}
