// Command trinitas is the process entry point for the multi-persona AI
// task router and orchestrator.
package main

func main() {
	Execute()
}
