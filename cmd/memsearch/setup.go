package main

import "memsearch/internal/setup"

// Run launches the interactive setup wizard.
func (c *SetupCmd) Run(rc *runtimeCtx) error {
	return setup.Run()
}
