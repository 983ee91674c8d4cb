package app

import (
	"github.com/vk/packsmith/internal/registry"
	"github.com/vk/packsmith/modules/container_image"
	"github.com/vk/packsmith/modules/fpm_package"
	"github.com/vk/packsmith/modules/frozen_binary"
)

// coreModules is the definitive list of all action modules that are compiled
// into the packsmith binary.
var coreModules = []registry.Module{
	&frozen_binary.Module{},
	&fpm_package.Module{},
	&container_image.Module{},
}
