// Command lumen-shaderc compiles every built-in shader permutation ahead of time and writes the
// bytecode to disk, one file per program. It exits non-zero if any permutation fails.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

func main() {
	out := flag.String("out", "shaders", "output directory")
	format := flag.String("format", "all", "bytecode to emit: spirv, hlsl or all")
	verbose := flag.Bool("v", false, "log every compiled program")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	formats, err := parseFormats(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lumen-shaderc:", err)
		os.Exit(2)
	}

	var failed []error
	for _, f := range formats {
		n, err := compileAll(f, filepath.Join(*out, f.String()))
		fmt.Printf("%s: %d programs written\n", f, n)
		if err != nil {
			failed = append(failed, err)
		}
	}
	if err := errors.Join(failed...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFormats(s string) ([]gpu.ShaderFormat, error) {
	switch strings.ToLower(s) {
	case "all":
		return []gpu.ShaderFormat{gpu.ShaderFormatSPIRV, gpu.ShaderFormatHLSL}, nil
	case "spirv", "spv":
		return []gpu.ShaderFormat{gpu.ShaderFormatSPIRV}, nil
	case "hlsl":
		return []gpu.ShaderFormat{gpu.ShaderFormatHLSL}, nil
	default:
		return nil, fmt.Errorf("unknown format %q, want spirv, hlsl or all", s)
	}
}

// program is one shader and macro set to compile.
type program struct {
	name   string
	macros []string
}

// fileName derives a stable, flat file name from the shader name and its sorted macros.
func (p program) fileName(format gpu.ShaderFormat) string {
	base := strings.ReplaceAll(p.name, "/", "_")
	if len(p.macros) > 0 {
		macros := slices.Clone(p.macros)
		slices.Sort(macros)
		base += "__" + strings.ToLower(strings.Join(macros, "__"))
	}
	ext := ".spv"
	if format == gpu.ShaderFormatHLSL {
		ext = ".hlsl"
	}
	return base + ext
}

// programs expands the built-in pipeline permutations into the distinct programs they compile.
func programs() []program {
	seen := make(map[string]bool)
	var out []program
	add := func(name string, macros []string) {
		p := program{name: name, macros: macros}
		key := p.fileName(gpu.ShaderFormatWGSL)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, p)
	}
	for _, req := range renderer.BuiltinPermutations() {
		if req.Kind == pipeline.PipelineKindCompute {
			add(req.Config.VertexShader, req.Config.VertexMacros)
			continue
		}
		vs, ps := req.Config.ProgramMacros(req.Kind)
		add(req.Config.VertexShader, vs)
		if req.Kind.UsesPixelShader() {
			add(req.Config.PixelShader, ps)
		}
	}
	return out
}

// compileAll compiles every program for one format on a worker pool and writes the results
// under dir.
func compileAll(format gpu.ShaderFormat, dir string) (int, error) {
	reg, err := renderer.NewShaderRegistry(format)
	if err != nil {
		return 0, err
	}
	reg.MarkReady()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	pool := worker.NewDynamicWorkerPool(runtime.NumCPU(), 64, time.Second)
	defer pool.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		written int
	)
	for i, p := range programs() {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				err := compileOne(reg, format, dir, p)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				} else {
					written++
				}
				return nil, err
			},
		})
	}
	wg.Wait()
	return written, errors.Join(errs...)
}

// compileOne compiles a program and writes its bytecode.
func compileOne(reg shader.Registry, format gpu.ShaderFormat, dir string, p program) error {
	start := time.Now()
	prog, err := reg.Program(p.name, p.macros)
	if err != nil {
		return fmt.Errorf("%s %s: %w", format, p.fileName(format), err)
	}
	if len(prog.Bytecode) == 0 {
		return fmt.Errorf("%s %s: compiler produced no bytecode", format, p.fileName(format))
	}
	path := filepath.Join(dir, p.fileName(format))
	if err := os.WriteFile(path, prog.Bytecode, 0o644); err != nil {
		return err
	}
	logger.Logger().Debug("program written",
		slog.String("path", path),
		slog.Int("bytes", len(prog.Bytecode)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
