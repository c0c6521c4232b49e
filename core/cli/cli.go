package cli

import (
	"github.com/kilnworks/kiln/core/cli/cmd"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// Execute runs the CLI, logging any terminal error through the shared
// logger so output stays structured.
func Execute() error {
	if err := cmd.Execute(); err != nil {
		logger := logging.New("cli")
		logger.Error().Msg(err.Error())
		return err
	}
	return nil
}
