// Package debugger attaches to one unit instance and runs it in a
// controlled mode: the production main loop, a single processing step,
// message inspection and injection, or an interactive console.
package debugger
