package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/configuration"
	"github.com/omnidesk/omnidesk/pkg/httpapi"
	"github.com/omnidesk/omnidesk/pkg/middleware"
	"github.com/omnidesk/omnidesk/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

// Default assembles the HTTP server with the standard middleware stack.
// Order matters: the logger wraps everything so panics and 404s are
// captured; the pool comes next so every handler can open transactions.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()),
		middleware.WithPool(options.Pool),
		middleware.WithParams(),
	}
	app.RegisterMiddleware(middlewares...)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", map[string]string{
			"path": r.URL.Path,
		})
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	})
	return server.NewHTTPServer(app, notFound, methodNotAllowed), nil
}
