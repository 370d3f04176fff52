package version

import (
	"github.com/uleam-dti/dms/internal/cmd/base"
	"github.com/uleam-dti/dms/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return "Usage: dms version"
}

func (c *Command) Run(_ []string) int {
	c.UI.Output(version.Version)
	return 0
}
