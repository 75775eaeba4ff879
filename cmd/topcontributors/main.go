package main

import (
	"topcontributors/cmd/topcontributors/commands"
	"topcontributors/internal/components/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
