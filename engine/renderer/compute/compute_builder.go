package compute

import "github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"

// ComputeShaderInterfaceBuilderOption configures a ComputeShaderInterface during construction.
type ComputeShaderInterfaceBuilderOption func(*computeShaderInterface)

// WithExecutionGroup sets the ordinal group the dispatch runs in. Every interface of group N
// completes on the GPU before group N+1 starts.
//
// Parameters:
//   - group: the execution group
//
// Returns:
//   - ComputeShaderInterfaceBuilderOption: a function that sets the execution group
func WithExecutionGroup(group int) ComputeShaderInterfaceBuilderOption {
	return func(c *computeShaderInterface) {
		c.group = group
	}
}

// WithExecutionStage sets the stage of the frame the dispatch runs in.
//
// Parameters:
//   - stage: the execution stage
//
// Returns:
//   - ComputeShaderInterfaceBuilderOption: a function that sets the execution stage
func WithExecutionStage(stage pipeline.ExecutionStage) ComputeShaderInterfaceBuilderOption {
	return func(c *computeShaderInterface) {
		c.stage = stage
	}
}

// WithMacros selects a permutation of the compute shader.
//
// Parameters:
//   - macros: the permutation macros
//
// Returns:
//   - ComputeShaderInterfaceBuilderOption: a function that sets the macros
func WithMacros(macros ...string) ComputeShaderInterfaceBuilderOption {
	return func(c *computeShaderInterface) {
		c.macros = macros
	}
}
