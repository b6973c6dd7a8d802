package build

import (
	"context"

	"github.com/outofforest/build"
	"github.com/outofforest/buildgo"
)

// Commands is a definition of commands available in build system
var Commands = map[string]build.Command{
	"test": {Fn: goTests, Description: "Runs unit tests with the test build tag, enabling small block store limits"},
}

func init() {
	buildgo.AddCommands(Commands)
}

func goTests(ctx context.Context, deps build.DepsFunc) error {
	return buildgo.GoTest(ctx, deps, "test")
}
