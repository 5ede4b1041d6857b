package vulkan

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// ResultString returns the name of a driver result, with a short explanation when extended is set.
func ResultString(result vk.Result, extended bool) string {
	name, detail := resultText(result)
	if extended {
		return name + " " + detail
	}
	return name
}

func resultText(result vk.Result) (string, string) {
	switch result {
	case vk.Success:
		return "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		return "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		return "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.Incomplete:
		return "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR", "A swapchain no longer matches the surface properties exactly, but can still be used to present"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR", "The surface changed and is no longer compatible with the swapchain"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed"
	default:
		return "VK_ERROR_UNKNOWN", "An unknown error has occurred"
	}
}

// IsSuccess reports whether result is one of the non-error codes.
func IsSuccess(result vk.Result) bool {
	return result >= 0
}

// toResult folds a driver result into the subset the render core reacts to.
func toResult(result vk.Result) gfx.Result {
	switch result {
	case vk.Success:
		return gfx.Success
	case vk.NotReady:
		return gfx.NotReady
	case vk.Timeout:
		return gfx.Timeout
	case vk.Suboptimal:
		return gfx.Suboptimal
	case vk.ErrorOutOfDate:
		return gfx.ErrorOutOfDate
	case vk.ErrorSurfaceLost:
		return gfx.ErrorSurfaceLost
	case vk.ErrorDeviceLost:
		return gfx.ErrorDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory:
		return gfx.ErrorOutOfMemory
	default:
		return gfx.ErrorUnknown
	}
}

// resultErr picks the sentinel error a failed result is wrapped with.
func resultErr(result vk.Result) error {
	switch result {
	case vk.ErrorDeviceLost:
		return core.ErrDeviceLost
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory, vk.ErrorOutOfPoolMemory:
		return core.ErrOutOfDeviceMemory
	case vk.ErrorOutOfDate:
		return core.ErrSwapchainOutOfDate
	default:
		return core.ErrUnknown
	}
}

// check turns a failed driver call into a logged, wrapped error.
func check(res vk.Result, what string) error {
	if IsSuccess(res) {
		return nil
	}
	err := fmt.Errorf("%s failed with %s: %w", what, ResultString(res, true), resultErr(res))
	core.LogError(err.Error())
	return err
}

func timeoutNs(d time.Duration) uint64 {
	if d < 0 || d == gfx.Infinite {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

const end = "\x00"

// safeString null terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// cString converts a fixed size, null padded name array into a Go string.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

// spirvWords reinterprets SPIR-V bytecode as the 32 bit words the driver expects.
func spirvWords(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
}
