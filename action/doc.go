// Package action provides the smallest unit of work in gostack: a named,
// host-targeted command with a success predicate.
//
// # Actions
//
// An Action describes an opaque command, the privilege it needs and how to
// decide whether it worked. The package never interprets the command itself;
// it is handed to an Executor which runs it on a host and reports back the
// exit status and captured output:
//
//	install := action.Action{
//	    Name:    "install nginx",
//	    Command: action.Command{Run: "apt-get install -y nginx", Privilege: action.Elevated},
//	}
//	outcome := install.Execute(ctx, executor, "10.0.0.5")
//
// # Policy Layers
//
// Idempotency and operator confirmation are not properties of the Action.
// They are attached at declaration time as layers on a Step, which form a
// chain of responsibility around the Action:
//
//	step := action.NewStep(uninstall).
//	    Gated("Remove nginx?").
//	    Guarded(action.Action{Name: "nginx absent", Command: action.Command{Run: "! command -v nginx"}})
//
// The outermost layer runs first. In the example the Guard runs its check and
// short-circuits with StatusSkippedIdempotent when nginx is already absent;
// only otherwise does the Gate prompt the operator.
//
// # Results
//
// Running a Step yields a Result whose Status is one of:
//
//	StatusSucceeded          the wrapped Action ran and its predicate held
//	StatusSkippedIdempotent  a Guard found the effect already in place
//	StatusFailed             the Action failed, or the Gate got malformed input
//	StatusSkippedByUser      the operator answered "n" at a Gate
//
// Failures carry a *Failure error which matches ErrActionFailure with errors.Is.
package action
