// Package redis forwards dumplings to a Redis channel via PUBLISH, one
// netdumplings.Eater per connection pool.
package redis

import (
	ps "github.com/gomodule/redigo/redis"

	"github.com/netdumplings/netdumplings"
)

// Sink publishes every dumpling it eats to a fixed Redis channel.
type Sink struct {
	pool    *ps.Pool
	channel string
}

// New constructs a Sink publishing to channel via pool.
func New(pool *ps.Pool, channel string) *Sink {
	return &Sink{pool: pool, channel: channel}
}

// Attach builds an Eater whose OnDumpling PUBLISHes to Redis.
func (s *Sink) Attach(name, hubHost string, hubPort int, chefs []string) *netdumplings.Eater {
	eater := netdumplings.NewEater(name, hubHost, hubPort, nil)
	eater.Chefs = chefs
	eater.OnDumpling = func(d *netdumplings.Dumpling) {
		encoded, err := d.Encode()
		if err != nil {
			return
		}

		conn := s.pool.Get()
		defer conn.Close()

		if _, err := conn.Do("PUBLISH", s.channel, encoded); err != nil {
			netdumplings.Logger().Errorf("redis sink %s: error publishing - %v", name, err)
		}
	}
	return eater
}
