// Package pubsub forwards dumplings to a Google Cloud Pub/Sub topic, one
// netdumplings.Eater per topic.
package pubsub

import (
	"context"

	ps "cloud.google.com/go/pubsub"

	"github.com/netdumplings/netdumplings"
)

// Sink publishes every dumpling it eats to a fixed Pub/Sub topic.
type Sink struct {
	topic *ps.Topic
}

// New constructs a Sink publishing to topic in projectID.
func New(projectID, topic string) (*Sink, error) {
	client, err := ps.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, err
	}

	return &Sink{topic: client.Topic(topic)}, nil
}

// Attach builds an Eater whose OnDumpling publishes to Pub/Sub.
func (s *Sink) Attach(name, hubHost string, hubPort int, chefs []string) *netdumplings.Eater {
	eater := netdumplings.NewEater(name, hubHost, hubPort, nil)
	eater.Chefs = chefs
	eater.OnDumpling = func(d *netdumplings.Dumpling) {
		encoded, err := d.Encode()
		if err != nil {
			return
		}

		result := s.topic.Publish(context.Background(), &ps.Message{Data: encoded})
		if _, err := result.Get(context.Background()); err != nil {
			netdumplings.Logger().Errorf("pubsub sink %s: error publishing - %v", name, err)
		}
	}
	return eater
}
