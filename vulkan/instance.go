package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/logging"
)

const validationLayer = "VK_LAYER_KHRONOS_validation\x00"

var ErrValidationUnavailable = errors.New("validation layers requested but not available")

type Instance struct {
	Handle           vk.Instance
	DebugCallback    vk.DebugReportCallback
	EnableValidation bool
}

type InstanceConfig struct {
	AppName            string
	EngineName         string
	AppVersion         uint32
	EngineVersion      uint32
	EnableValidation   bool
	RequiredExtensions []string
}

func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		AppName:          "Frame Engine App",
		EngineName:       "Frame Engine",
		AppVersion:       vk.MakeVersion(1, 0, 0),
		EngineVersion:    vk.MakeVersion(1, 0, 0),
		EnableValidation: true,
	}
}

// NewInstance creates the Vulkan instance. Init must have been called.
func NewInstance(config InstanceConfig) (*Instance, error) {
	// Application info
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   config.AppName + "\x00",
		ApplicationVersion: config.AppVersion,
		PEngineName:        config.EngineName + "\x00",
		EngineVersion:      config.EngineVersion,
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	// Extensions
	extensions := terminated(config.RequiredExtensions)
	if config.EnableValidation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName+"\x00")
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	// Validation layers
	if config.EnableValidation {
		if !checkValidationLayerSupport() {
			return nil, ErrValidationUnavailable
		}
		createInfo.EnabledLayerCount = 1
		createInfo.PpEnabledLayerNames = []string{validationLayer}
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&createInfo, nil, &instance), "failed to create Vulkan instance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "failed to load instance functions")
	}

	inst := &Instance{
		Handle:           instance,
		EnableValidation: config.EnableValidation,
	}

	// Setup debug callback
	if config.EnableValidation {
		dbgInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugCallback,
		}
		var cb vk.DebugReportCallback
		if err := check(vk.CreateDebugReportCallback(instance, &dbgInfo, nil, &cb), "failed to set up debug callback"); err != nil {
			logging.Logger().Warn("validation messages disabled", "error", err)
		} else {
			inst.DebugCallback = cb
		}
	}

	logging.Logger().Debug("instance created",
		"validation", config.EnableValidation,
		"extensions", len(extensions),
	)
	return inst, nil
}

func (i *Instance) Destroy() {
	if i.DebugCallback != vk.DebugReportCallback(vk.NullHandle) {
		vk.DestroyDebugReportCallback(i.Handle, i.DebugCallback, nil)
	}
	vk.DestroyInstance(i.Handle, nil)
}

func debugCallback(flags vk.DebugReportFlags, _ vk.DebugReportObjectType, _ uint64, _ uint,
	code int32, layerPrefix string, message string, _ unsafe.Pointer) vk.Bool32 {

	log := logging.Logger().With("layer", layerPrefix, "code", code)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(message)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn(message)
	default:
		log.Debug(message)
	}
	return vk.False
}

func checkValidationLayerSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}

	for _, layer := range layers {
		layer.Deref()
		if vk.ToString(layer.LayerName[:])+"\x00" == validationLayer {
			return true
		}
	}
	return false
}
