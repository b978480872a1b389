package modules

import (
	"github.com/omnidesk/omnidesk/modules/livechat"
	"github.com/omnidesk/omnidesk/pkg/application"
)

var BuiltInModules = []application.Module{
	livechat.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	modules := append(BuiltInModules, externalModules...)
	return application.Load(app, modules...)
}
