package app

import (
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/modules/mask"
	"github.com/voxpipe/voxpipe/modules/model"
	"github.com/voxpipe/voxpipe/modules/register"
	"github.com/voxpipe/voxpipe/modules/roi"
	"github.com/voxpipe/voxpipe/modules/stage"
)

// coreModules is the definitive list of all units that are compiled into
// the voxpipe binary.
var coreModules = []registry.Module{
	&stage.Module{},
	&roi.Module{},
	&mask.Module{},
	&register.Module{},
	&model.Module{},
}
