// Package postgres implements job.Store on PostgreSQL using pgx/v5 with raw
// SQL. Claims use SELECT FOR UPDATE SKIP LOCKED so many processes can
// dequeue from the same table; FIFO order within a priority follows a
// sequence stamped whenever an envelope enters its ready queue. The schema
// ships as embedded SQL migrations applied by Migrate.
package postgres
