// Package domain holds the error vocabulary shared by the unit runtime and
// the debugger.
//
// Sentinel errors are compared with errors.Is. The two typed errors carry
// the detail an operator needs to act on a failure:
//
//   - [LoadError]: a unit module reference could not be resolved
//   - [DecodeError]: a message payload could not be turned into a Message
package domain
