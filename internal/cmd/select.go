package cmd

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"orgsync/pkg/config"
	"orgsync/pkg/fuzzy"
)

var isInteractive = func() bool {
	return !noPrompt && term.IsTerminal(int(os.Stdin.Fd()))
}

// organizationArg returns the single organization named in args, or lets the
// user pick one of the configured organizations
func organizationArg(settings *config.Settings, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if len(settings.Organizations) == 0 {
		return "", fmt.Errorf("no organization given and none configured")
	}
	if len(settings.Organizations) == 1 {
		return settings.Organizations[0].Name, nil
	}
	if !isInteractive() {
		return "", fmt.Errorf("no organization given: pass one of the %d configured organizations", len(settings.Organizations))
	}

	options := make([]fuzzy.Option, len(settings.Organizations))
	for i, o := range settings.Organizations {
		options[i] = fuzzy.Option{Value: o.Name, Description: o.Config}
	}
	return fuzzy.New("Organization>", options).Select()
}
