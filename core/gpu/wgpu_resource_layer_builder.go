package gpu

import "github.com/cogentcore/webgpu/wgpu"

// wgpuLayerConfig carries construction-only settings consumed before the
// device is requested.
type wgpuLayerConfig struct {
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
}

// WGPULayerBuilderOption is a functional option for configuring a wgpu resource layer during construction.
// Use the With* functions to create options.
type WGPULayerBuilderOption func(l *wgpuResourceLayer, cfg *wgpuLayerConfig)

// WithSurfaceDescriptor binds the layer's adapter selection to a window
// surface. Omit it for headless use; the layer then runs on any adapter.
//
// Parameters:
//   - descriptor: the platform surface descriptor
//
// Returns:
//   - WGPULayerBuilderOption: option function to apply
func WithSurfaceDescriptor(descriptor *wgpu.SurfaceDescriptor) WGPULayerBuilderOption {
	return func(l *wgpuResourceLayer, cfg *wgpuLayerConfig) {
		cfg.surfaceDescriptor = descriptor
	}
}

// WithForceFallbackAdapter forces selection of the software fallback adapter.
//
// Returns:
//   - WGPULayerBuilderOption: option function to apply
func WithForceFallbackAdapter() WGPULayerBuilderOption {
	return func(l *wgpuResourceLayer, cfg *wgpuLayerConfig) {
		cfg.forceFallbackAdapter = true
	}
}

// WithInitialInstanceCapacity sets how many instances a pipeline's first
// buffer allocation holds. Defaults to 64. Values below 1 are clamped to 1.
//
// Parameters:
//   - instances: the initial per-pipeline instance capacity
//
// Returns:
//   - WGPULayerBuilderOption: option function to apply
func WithInitialInstanceCapacity(instances int) WGPULayerBuilderOption {
	return func(l *wgpuResourceLayer, cfg *wgpuLayerConfig) {
		if instances < 1 {
			instances = 1
		}
		l.initialInstances = instances
	}
}
