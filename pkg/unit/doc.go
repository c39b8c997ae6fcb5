// Package unit is the runtime every message-processing unit runs in.
//
// A unit implementation is a [Processor]: it is initialized from its
// parameters and processes one message per [Processor.Process] call, using
// the [Runtime] to receive, send and acknowledge messages:
//
//	func (f *Filter) Process(ctx context.Context, rt *unit.Runtime) error {
//	    msg, err := rt.ReceiveMessage(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if err := rt.SendMessage(ctx, msg); err != nil {
//	        return err
//	    }
//	    return rt.AcknowledgeMessage(ctx)
//	}
//
// Implementations register a factory under a module reference, the way
// database/sql drivers do, and are instantiated by reference through a
// [Registry]:
//
//	func init() { unit.Register("experts.filter", func() unit.Processor { return &Filter{} }) }
//
// [Runtime.Start] is the production main loop: it connects the pipeline,
// calls Process repeatedly, polls when the source queue is empty and applies
// the unit's error handling settings (retries, dumping, stop or pass).
//
// The Runtime's pipeline-facing operations go through a [Transport]. By
// default that is the live pipeline; [Runtime.Bind] substitutes another
// transport for the rest of the Runtime's lifetime, which is how the
// debugger injects messages, suppresses sends or peeks at a queue.
package unit
