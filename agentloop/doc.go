// Package agentloop implements a bounded think/act/observe loop that lets a
// model edit files inside one sandboxed workspace.
//
// Each iteration renders the instruction and the trajectory so far, asks the
// model for a JSON Directive, and either runs the named tool or stops with
// the final answer. A run ends DONE on a final answer and ABORTED when the
// iteration ceiling is reached first; both are returned normally.
//
// # Architecture
//
//   - Agent: the state machine (THINKING, ACTING, OBSERVING, DONE, ABORTED).
//   - Workspace: filesystem primitives confined to one root directory.
//   - ToolRegistry: registration and dispatch of tool definitions.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	ws, err := agentloop.NewWorkspace("/path/to/project")
//	if err != nil {
//	    return err
//	}
//	tools := agentloop.NewToolRegistry()
//	agentloop.RegisterWorkspaceTools(tools)
//
//	agent := agentloop.NewAgent(gen, tools, ws, agentloop.DefaultAgentConfig())
//	result, err := agent.Run(ctx, "Add a docstring to main.py")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.State, result.Output())
package agentloop
