package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/audiobench/core/graph"
)

// Interpreter is a reference Compiler implementation that parses the
// generated textual program and walks it directly against a module
// registry, rather than handing it to a real JIT. It exists so the engine
// can be exercised and tested without an external compiler dependency.
type Interpreter struct {
	Registry *graph.Registry
	Channels int
}

// NewInterpreter creates an interpreter bound to reg for resolving a
// program's CALL code ids, rendering audioChannels channels of audio
// output.
func NewInterpreter(reg *graph.Registry, audioChannels int) *Interpreter {
	return &Interpreter{Registry: reg, Channels: audioChannels}
}

type call struct {
	codeID  string
	outputs []string
	args    []string
}

type irProgram struct {
	bufferLength int
	sampleRate   float32
	calls        []call
}

// Compile parses source into a ready-to-run Program.
func (in *Interpreter) Compile(source string) (Program, error) {
	prog, err := parse(source)
	if err != nil {
		return nil, err
	}
	return &interpretedProgram{
		interp: in,
		prog:   prog,
		static: make(map[int]map[int]map[int][]float32),
	}, nil
}

func parse(source string) (*irProgram, error) {
	prog := &irProgram{}
	lines := strings.Split(source, "\n")
	var current *call
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "MODULE ") || line == "END_MODULE" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "BUFFER_LENGTH "):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "BUFFER_LENGTH "))
			if err != nil {
				return nil, fmt.Errorf("compiler: line %d: %w", lineNo+1, err)
			}
			prog.bufferLength = n
		case strings.HasPrefix(line, "SAMPLE_RATE "):
			f, err := strconv.ParseFloat(strings.TrimPrefix(line, "SAMPLE_RATE "), 32)
			if err != nil {
				return nil, fmt.Errorf("compiler: line %d: %w", lineNo+1, err)
			}
			prog.sampleRate = float32(f)
		case line == "EXEC" || line == "END_EXEC":
			// section markers only
		case strings.HasPrefix(line, "CALL "):
			rest := strings.TrimPrefix(line, "CALL ")
			parts := strings.SplitN(rest, "->", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("compiler: line %d: malformed CALL", lineNo+1)
			}
			outs := splitCSV(parts[1])
			current = &call{codeID: strings.TrimSpace(parts[0]), outputs: outs}
		case strings.HasPrefix(line, "ARG "):
			if current == nil {
				return nil, fmt.Errorf("compiler: line %d: ARG outside CALL", lineNo+1)
			}
			argExpr := strings.TrimPrefix(line, "ARG ")
			if idx := strings.Index(argExpr, " #"); idx >= 0 {
				argExpr = argExpr[:idx]
			}
			current.args = append(current.args, strings.TrimSpace(argExpr))
		case line == "END_CALL":
			if current == nil {
				return nil, fmt.Errorf("compiler: line %d: END_CALL without CALL", lineNo+1)
			}
			prog.calls = append(prog.calls, *current)
			current = nil
		default:
			return nil, fmt.Errorf("compiler: line %d: unrecognized directive %q", lineNo+1, line)
		}
	}
	return prog, nil
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

type interpretedProgram struct {
	interp *Interpreter
	prog   *irProgram
	// static holds per-voice, per-module-index persistent storage.
	static map[int]map[int]map[int][]float32
}

func (p *interpretedProgram) InitStatic(staticIndex int) {
	p.static[staticIndex] = make(map[int]map[int][]float32)
}

func (p *interpretedProgram) Exec(staticIndex int, io *IO) error {
	voiceStatic, ok := p.static[staticIndex]
	if !ok {
		voiceStatic = make(map[int]map[int][]float32)
		p.static[staticIndex] = voiceStatic
	}

	audioOut := make([]float32, p.interp.Channels*p.prog.bufferLength)
	ctx := &graph.ExecContext{
		BufferLength: p.prog.bufferLength,
		Channels:     p.interp.Channels,
		SampleRate:   p.prog.sampleRate,
		AudioOut:     audioOut,
	}

	outputs := make(map[string][]float32)

	for modIndex, c := range p.prog.calls {
		fn, err := p.interp.Registry.Lookup(c.codeID)
		if err != nil {
			return err
		}
		if voiceStatic[modIndex] == nil {
			voiceStatic[modIndex] = make(map[int][]float32)
		}
		ctx.Static = voiceStatic[modIndex]

		if c.codeID == "factory.feedback" {
			ctx.FeedbackOut = io.GetOutput(OutFeedbackSlot).Values
		}

		ins := make([][]float32, len(c.args))
		for i, arg := range c.args {
			vals, err := evalExpr(arg, io, outputs, p.prog.bufferLength)
			if err != nil {
				return err
			}
			ins[i] = vals
		}

		results := fn(ctx, ins)
		for i, name := range c.outputs {
			if i < len(results) {
				outputs[name] = results[i]
			}
		}
	}

	io.SetOutput(OutAudioSlot, ctx.AudioOut)
	return nil
}

// OutAudioSlot and OutFeedbackSlot mirror datapack.OutSlotAudio/Feedback.
const (
	OutAudioSlot    = 0
	OutFeedbackSlot = 1
)
