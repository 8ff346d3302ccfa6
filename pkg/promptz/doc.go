// Package promptz provides the mutation and domain-event pipeline behind the
// promptz content-sharing backend: prompts, project rules and agents.
//
// It exposes a single Service interface. Each mutation runs a resolver stage
// that performs one conditional write against a pluggable Store (memory,
// Postgres, SQLite and DynamoDB implementations live under store/), followed
// by a publisher stage that hands the staged Event to a Publisher (NATS
// JetStream, CloudEvents over HTTP and an S3 archive live under bus/).
//
// Ownership
//
// The owner of an entity is the caller identity at creation and never
// changes. Updates and deletes are conditioned on it; a missing entity and a
// foreign one both yield ErrUnauthorized so callers cannot probe for ids.
//
// Delivery
//
// Events are published at most once. A publish failure is logged and counted
// but never rolled back and never returned: the caller always sees the store
// outcome. Consumers that need history replay it from the bus archive.
package promptz
