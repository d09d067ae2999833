// Package sqs forwards dumplings to an AWS SQS queue, one
// netdumplings.Eater per queue.
package sqs

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	ps "github.com/aws/aws-sdk-go/service/sqs"
	"github.com/google/uuid"

	"github.com/netdumplings/netdumplings"
)

// Sink sends every dumpling it eats to a fixed SQS queue URL.
type Sink struct {
	client   *ps.SQS
	queueURL string
}

// New constructs a Sink in region, sending to queueURL.
func New(region, queueURL string) (*Sink, error) {
	s := session.Must(session.NewSession())
	return &Sink{
		client:   ps.New(s, aws.NewConfig().WithRegion(region)),
		queueURL: queueURL,
	}, nil
}

// Attach builds an Eater whose OnDumpling sends to SQS.
func (s *Sink) Attach(name, hubHost string, hubPort int, chefs []string) *netdumplings.Eater {
	eater := netdumplings.NewEater(name, hubHost, hubPort, nil)
	eater.Chefs = chefs
	eater.OnDumpling = func(d *netdumplings.Dumpling) {
		encoded, err := d.Encode()
		if err != nil {
			return
		}

		body := string(encoded)
		id := uuid.New().String()

		_, err = s.client.SendMessage(&ps.SendMessageInput{
			QueueUrl:               &s.queueURL,
			MessageBody:            &body,
			MessageDeduplicationId: &id,
		})
		if err != nil {
			netdumplings.Logger().Errorf("sqs sink %s: error sending - %v", name, err)
		}
	}
	return eater
}
