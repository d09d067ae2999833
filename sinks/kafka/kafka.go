// Package kafka forwards dumplings to a Kafka topic, one netdumplings.Eater
// per writer.
package kafka

import (
	"context"
	"fmt"

	kaf "github.com/segmentio/kafka-go"

	"github.com/netdumplings/netdumplings"
)

// Sink writes every dumpling it eats to a Kafka topic as its JSON encoding.
type Sink struct {
	writer *kaf.Writer
}

// New constructs a Sink writing to the topic described by config.
func New(config *kaf.WriterConfig) *Sink {
	return &Sink{writer: kaf.NewWriter(*config)}
}

// Close releases the underlying Kafka writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

// Attach builds an Eater whose OnDumpling writes to Kafka, wiring name,
// hub address and chef filter the same way any other Eater is configured.
func (s *Sink) Attach(name, hubHost string, hubPort int, chefs []string) *netdumplings.Eater {
	eater := netdumplings.NewEater(name, hubHost, hubPort, nil)
	eater.Chefs = chefs
	eater.OnDumpling = func(d *netdumplings.Dumpling) {
		encoded, err := d.Encode()
		if err != nil {
			return
		}

		msg := kaf.Message{
			Key:   []byte(d.Metadata.Chef),
			Value: encoded,
		}

		if err := s.writer.WriteMessages(context.Background(), msg); err != nil {
			netdumplings.Logger().Errorf("kafka sink %s: %s", name, fmt.Errorf("write message: %w", err))
		}
	}
	return eater
}
