// Package redis implements job.Store on Redis for deployments where many
// processes share one queue.
//
// Every envelope is a Hash. Each job type owns two Sorted Sets: a ready
// set scored by priority and insertion sequence, claimed with ZPOPMIN, and
// a delayed set scored by due time. A delayed envelope is promoted by the
// caller that wins its ZREM, so concurrent workers never promote or claim
// the same member twice. Plain Sets index envelopes per workspace (for
// listing) and per type and status (for counts).
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
