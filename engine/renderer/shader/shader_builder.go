package shader

// RegistryBuilderOption configures a Registry.
type RegistryBuilderOption func(*registry)

// WithConstant defines a constant emitted by //@lumen:const NAME. The value is a WGSL literal.
func WithConstant(name, value string) RegistryBuilderOption {
	return func(r *registry) {
		r.constants[name] = value
	}
}

// WithCompiler replaces the default naga compiler.
func WithCompiler(c Compiler) RegistryBuilderOption {
	return func(r *registry) {
		r.compiler = c
	}
}

// WithCacheSize sets the number of compiled programs kept in memory.
func WithCacheSize(n int) RegistryBuilderOption {
	return func(r *registry) {
		r.cacheSize = n
	}
}
