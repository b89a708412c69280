// Command audiobench-demo wires a small oscillator patch into a running
// Engine and drives it in a render loop. Notes come either from a
// synthetic arpeggio or from a real MIDI input port.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/portmididrv"

	audiobench "github.com/audiobench/core"
	"github.com/audiobench/core/comms"
	"github.com/audiobench/core/graph"
	ingest "github.com/audiobench/core/midi"
	"github.com/audiobench/core/session"
	"github.com/audiobench/core/telemetry"
	"github.com/audiobench/core/voice"
)

var config struct {
	channels     int
	bufferLength int
	sampleRate   float32
	bpm          float32
	midiPort     string
	listPorts    bool
}

var rootCmd = &cobra.Command{
	Use:   "audiobench-demo",
	Short: "Drives a small oscillator patch through the audiobench engine",
	Long: `audiobench-demo builds a pitch-to-freq -> sine -> gain -> audio_out
patch, starts the engine, and renders it continuously. Feed it notes from a
real MIDI controller with --midi-port, or let it play a synthetic arpeggio.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().IntVar(&config.channels, "channels", 2, "output channel count")
	rootCmd.Flags().IntVar(&config.bufferLength, "buffer-length", 512, "render buffer length in samples")
	rootCmd.Flags().Float32Var(&config.sampleRate, "sample-rate", 44100, "sample rate in Hz")
	rootCmd.Flags().Float32Var(&config.bpm, "bpm", 120, "tempo reported to the compiled program")
	rootCmd.Flags().StringVar(&config.midiPort, "midi-port", "", "MIDI input port name to listen on (empty plays a synthetic arpeggio)")
	rootCmd.Flags().BoolVar(&config.listPorts, "list-ports", false, "list available MIDI input ports and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if config.listPorts {
		for _, in := range gomidi.GetInPorts() {
			fmt.Println(in.String())
		}
		return nil
	}

	logger := telemetry.NewLogger("audiobench-demo")

	engine, err := audiobench.NewEngine(audiobench.EngineConfig{
		Session: session.Spec{
			Channels:             config.channels,
			BufferLengthOverride: config.bufferLength,
			PreferredSampleRate:  config.sampleRate,
		},
		ErrorHandler: audiobench.NewLoggingErrorHandler(&audiobench.DefaultErrorHandler{}, func(err *audiobench.EngineError) {
			logger.Error("%v", err)
		}),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	if err := buildDemoPatch(engine); err != nil {
		return fmt.Errorf("build patch: %w", err)
	}

	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Info("engine %s started", engine.GetIDString())
	defer engine.Stop()

	stopNotes, err := driveNotes(engine, logger)
	if err != nil {
		return err
	}
	defer stopNotes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(float64(config.bufferLength) / float64(config.sampleRate) * float64(time.Second)))
	defer ticker.Stop()

	buffersRendered := 0
	for {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received after %d buffers", buffersRendered)
			return nil
		case <-ticker.C:
			req := comms.RenderRequest{
				Global: voice.GlobalData{BPM: config.bpm},
			}
			if !engine.Hub().TryRender(req) {
				continue
			}
			resp, ok := engine.Hub().TryTakeResponse()
			if !ok {
				continue
			}
			buffersRendered++
			if buffersRendered%100 == 0 {
				logger.Info("rendered %d buffers, last peak %.3f", buffersRendered, peak(resp.Audio))
			}
		}
	}
}

// buildDemoPatch assembles pitch_to_freq -> sine -> gain -> audio_out,
// with a constant module feeding the gain's second input as a fixed
// gain level.
func buildDemoPatch(engine *audiobench.Engine) error {
	dispatcher := engine.Dispatcher()

	pitchTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.pitch_to_freq",
		Inputs:  []graph.Jack{graph.NewJack(graph.Pitch, "pitch", "Pitch")},
		Outputs: []graph.Jack{graph.NewJack(graph.Pitch, "freq", "Frequency")},
	}
	pitchRef, err := dispatcher.AddModule(pitchTmpl)
	if err != nil {
		return err
	}

	sineTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.sine",
		Inputs:  []graph.Jack{graph.NewJack(graph.Pitch, "freq", "Frequency")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	sineRef, err := dispatcher.AddModule(sineTmpl)
	if err != nil {
		return err
	}
	if err := dispatcher.ConnectWire(sineRef, 0, pitchRef, 0); err != nil {
		return err
	}

	lfoTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.constant",
		Inputs:  []graph.Jack{graph.NewJack(graph.Audio, "value", "Value")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	lfoTmpl.Inputs[0].DefaultOptions = []graph.DefaultInput{{Name: "Value", Code: "0.4"}}
	lfoRef, err := dispatcher.AddModule(lfoTmpl)
	if err != nil {
		return err
	}

	gainTmpl := &graph.ModuleTemplate{
		CodeID: "factory.gain",
		Inputs: []graph.Jack{
			graph.NewJack(graph.Audio, "signal", "Signal"),
			graph.NewJack(graph.Audio, "gain", "Gain"),
		},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	gainRef, err := dispatcher.AddModule(gainTmpl)
	if err != nil {
		return err
	}
	if err := dispatcher.ConnectWire(gainRef, 0, sineRef, 0); err != nil {
		return err
	}
	if err := dispatcher.ConnectWire(gainRef, 1, lfoRef, 0); err != nil {
		return err
	}

	outTmpl := &graph.ModuleTemplate{
		CodeID: "factory.audio_out",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
	}
	outRef, err := dispatcher.AddModule(outTmpl)
	if err != nil {
		return err
	}
	return dispatcher.ConnectWire(outRef, 0, gainRef, 0)
}

// driveNotes starts either a real MIDI listener or a synthetic arpeggio
// feeding note events into the engine's hub, and returns a function to
// stop it.
func driveNotes(engine *audiobench.Engine, logger *telemetry.Logger) (func(), error) {
	if config.midiPort == "" {
		return driveSyntheticArpeggio(engine, logger), nil
	}

	in, err := gomidi.FindInPort(config.midiPort)
	if err != nil {
		return nil, fmt.Errorf("find MIDI input port %q: %w", config.midiPort, err)
	}

	in2 := ingest.NewIngest(engine.Hub())
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		in2.Handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listen on MIDI input port %q: %w", config.midiPort, err)
	}
	logger.Info("listening for MIDI on %q", config.midiPort)
	return stop, nil
}

func driveSyntheticArpeggio(engine *audiobench.Engine, logger *telemetry.Logger) func() {
	notes := []int{60, 64, 67, 72}
	done := make(chan struct{})
	go func() {
		idx := 0
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		var lastKey int = -1
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if lastKey != -1 {
					engine.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteRelease, Key: lastKey})
				}
				key := notes[idx%len(notes)]
				idx++
				engine.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: key, Velocity: 0.9})
				lastKey = key
			}
		}
	}()
	logger.Info("playing synthetic arpeggio")
	return func() { close(done) }
}

func peak(samples []float32) float32 {
	var max float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return max
}
