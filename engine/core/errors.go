package core

import (
	"errors"
)

var (
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrSwapchainPaused    = errors.New("swapchain paused, framebuffer has a zero dimension")
	ErrNotHostVisible     = errors.New("buffer is not host visible")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrDescriptorOverflow = errors.New("texture slot exceeds descriptor array size")
	ErrResourceMissing    = errors.New("resource missing")
	ErrNoSuitableDevice   = errors.New("no physical device meets the requirements")
	ErrDeviceLost         = errors.New("device lost")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnknown            = errors.New("unknown")
)
