package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type ShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	CreateInfo vk.PipelineShaderStageCreateInfo
}

// newShaderStage wraps SPIR-V bytecode in a shader module for the given stage.
func (d *Device) newShaderStage(code []byte, stage vk.ShaderStageFlagBits) (ShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader bytecode of %d bytes is not SPIR-V: %w", len(code), core.ErrResourceMissing)
		core.LogError(err.Error())
		return ShaderStage{}, err
	}
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    spirvWords(code),
	}

	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.logical, &moduleInfo, d.inst.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return ShaderStage{}, err
	}

	return ShaderStage{
		Handle: module,
		CreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  safeString("main"),
		},
	}, nil
}

func (d *Device) destroyShaderStage(s ShaderStage) {
	if s.Handle != nil {
		vk.DestroyShaderModule(d.logical, s.Handle, d.inst.Allocator)
	}
}
