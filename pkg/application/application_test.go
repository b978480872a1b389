package application_test

import (
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

type greeterService struct {
	name string
}

type ignoredService struct{}

func newTestApp() application.Application {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return application.New(&application.ApplicationOptions{
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
}

func TestApplication_ServiceLookup(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	svc := &greeterService{name: "hello"}
	app.RegisterServices(svc)

	got := app.Service(greeterService{}).(*greeterService)
	assert.Same(t, svc, got)
	assert.Len(t, app.Services(), 1)
}

func TestApplication_ServiceLookupMissingPanics(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	app.RegisterServices(&greeterService{})

	require.Panics(t, func() {
		app.Service(ignoredService{})
	})
}

type stubController struct {
	key   string
	marks *[]string
}

func (c *stubController) Key() string { return c.key }

func (c *stubController) Register(r *mux.Router) {
	*c.marks = append(*c.marks, c.key)
}

func TestApplication_ControllerKeyReplacement(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	var marks []string
	first := &stubController{key: "/api", marks: &marks}
	second := &stubController{key: "/api", marks: &marks}
	other := &stubController{key: "/ws", marks: &marks}

	app.RegisterControllers(first, other)
	app.RegisterControllers(second)

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	assert.Same(t, second, controllers[0])
	assert.Same(t, other, controllers[1])
}

func TestApplication_Load(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	registered := false
	err := application.Load(app, &stubModule{fn: func(application.Application) error {
		registered = true
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestApplication_LoadPropagatesError(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	err := application.Load(app, &stubModule{fn: func(application.Application) error {
		return assert.AnError
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

type stubModule struct {
	fn func(application.Application) error
}

func (m *stubModule) Name() string { return "stub" }

func (m *stubModule) Register(app application.Application) error { return m.fn(app) }
