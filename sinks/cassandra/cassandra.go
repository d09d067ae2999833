// Package cassandra archives dumplings into a Cassandra table, one
// netdumplings.Eater per session.
package cassandra

import (
	"github.com/gocql/gocql"

	"github.com/netdumplings/netdumplings"
)

// Sink inserts every dumpling it eats into a fixed table.
type Sink struct {
	session *gocql.Session
	// InsertCQL is the insert statement; it is called with
	// (kitchen, chef, driver, creation_time, dumpling_json) in that order,
	// where dumpling_json is the whole encoded dumpling, metadata included.
	InsertCQL string
}

// New opens a session against hosts/keyspace and constructs a Sink.
func New(hosts []string, keyspace, insertCQL string) (*Sink, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	return &Sink{session: session, InsertCQL: insertCQL}, nil
}

// Close shuts down the underlying Cassandra session.
func (s *Sink) Close() {
	s.session.Close()
}

// Attach builds an Eater whose OnDumpling inserts into Cassandra.
func (s *Sink) Attach(name, hubHost string, hubPort int, chefs []string) *netdumplings.Eater {
	eater := netdumplings.NewEater(name, hubHost, hubPort, nil)
	eater.Chefs = chefs
	eater.OnDumpling = func(d *netdumplings.Dumpling) {
		encoded, err := d.Encode()
		if err != nil {
			return
		}

		kitchen := ""
		if d.Metadata.KitchenName != nil {
			kitchen = *d.Metadata.KitchenName
		}

		err = s.session.Query(
			s.InsertCQL,
			kitchen, d.Metadata.Chef, string(d.Metadata.Driver), d.Metadata.CreationTime, string(encoded),
		).Exec()
		if err != nil {
			netdumplings.Logger().Errorf("cassandra sink %s: error inserting - %v", name, err)
		}
	}
	return eater
}
