// Package store is the relational system of record for components and
// flows. Component actors hydrate from it on a cold start.
//
// Two dialects are supported: SQLite (github.com/mattn/go-sqlite3) for local
// and single-node deployments, and PostgreSQL (github.com/lib/pq). Queries
// are written with ? placeholders and rebound to $n for PostgreSQL.
//
// # Tables
//
//   - components: one row per persistent component, data as tagged JSON
//   - flows: flow headers
//   - flow_actions: one row per action, ordered by position
//   - components_to_flows: which flows a component references
//   - reaction_roles: reaction-to-role bindings on messages
//
// Snowflake ids are stored as signed 64-bit integers.
//
// # SQLite configuration
//
//   - WAL mode, synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
