package application

import (
	"fmt"
	"io/fs"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

// Controller is an HTTP surface a module mounts onto the router.
// Key must be stable and unique; registering a controller with an
// existing key replaces the previous one.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

// Module wires a feature's services, controllers and schema into the app.
type Module interface {
	Name() string
	Register(app Application) error
}

type Application interface {
	DB() *pgxpool.Pool
	Redis() *redis.Client
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger

	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}

	RegisterControllers(controllers ...Controller)
	Controllers() []Controller

	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	Middleware() []mux.MiddlewareFunc

	RegisterSchema(schema fs.FS)
	Migrations() *MigrationManager
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:       opts.Pool,
		rdb:        opts.Redis,
		eventBus:   opts.EventBus,
		logger:     opts.Logger,
		services:   make(map[reflect.Type]interface{}),
		migrations: NewMigrationManager(opts.Pool, opts.Logger),
	}
}

type application struct {
	pool        *pgxpool.Pool
	rdb         *redis.Client
	eventBus    eventbus.EventBus
	logger      *logrus.Logger
	services    map[reflect.Type]interface{}
	controllers []Controller
	middleware  []mux.MiddlewareFunc
	migrations  *MigrationManager
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) Redis() *redis.Client {
	return app.rdb
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventBus
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) RegisterServices(services ...interface{}) {
	for _, svc := range services {
		app.services[reflect.TypeOf(svc)] = svc
	}
}

// Service returns the registered instance matching the type of its
// argument. Pass a zero value, e.g. app.Service(services.QueueService{}).
func (app *application) Service(service interface{}) interface{} {
	t := reflect.TypeOf(service)
	for k, v := range app.services {
		if k == t || k == reflect.PointerTo(t) {
			return v
		}
	}
	panic(fmt.Sprintf("service %s not found", t.String()))
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		replaced := false
		for i, existing := range app.controllers {
			if existing.Key() == c.Key() {
				app.controllers[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			app.controllers = append(app.controllers, c)
		}
	}
}

func (app *application) Controllers() []Controller {
	return app.controllers
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) RegisterSchema(schema fs.FS) {
	app.migrations.RegisterSchema(schema)
}

func (app *application) Migrations() *MigrationManager {
	return app.migrations
}

// Load registers every module, failing fast on the first error.
func Load(app Application, modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("failed to register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
