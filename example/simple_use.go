package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midibridge/internal/logger"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"github.com/leandrodaf/midibridge/sdk/midi"
)

func main() {
	log := logger.NewStandardLogger()

	client, err := midi.NewMIDIClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
	)
	if err != nil {
		log.Error("Failed to initialize MIDI client", log.Field().Error("error", err))
		return
	}
	defer midi.Shutdown()
	defer client.Close()

	sources, err := client.ListSources()
	if err != nil || len(sources) == 0 {
		log.Error("No MIDI sources found or error listing sources", log.Field().Error("error", err))
		return
	}
	for _, src := range sources {
		name, _ := client.EndpointName(src)
		fmt.Printf("source %d: %s\n", src.Index(), name)
	}

	conn, err := client.OpenSource(sources[0])
	if err != nil {
		log.Error("Failed to open MIDI source", log.Field().Error("error", err))
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	fmt.Println("Receiving MIDI bytes... Press Ctrl+C to exit.")
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			return
		}
		log.Info("MIDI bytes", log.Field().Binary("data", data))
	}
}
