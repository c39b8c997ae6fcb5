// Package pipeline connects a unit to its queues.
//
// A [Broker] stores named FIFO queues of raw message bytes. Its [Broker.Pop]
// primitive atomically moves the oldest entry of a source queue into an
// internal queue, so a message that was received but not yet acknowledged
// survives a crash and is handed out again on the next receive.
//
// A [Pipeline] binds a broker to one unit:
//
//	source:   <unit-id>-queue
//	internal: <unit-id>-queue-internal
//	outputs:  one or more queues per named path ("_default", ...)
//
// Two brokers are provided: [MemoryBroker] for tests and single-process use,
// and [SQLiteBroker], a durable broker backed by a SQLite database file.
package pipeline
