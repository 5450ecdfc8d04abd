// Command fhirjson reads FHIR R4 JSON documents into typed records and
// prints them back, or reports what was dropped or invalid on the way in.
package main

import (
	"errors"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/gofhir/fhirjson"
	"github.com/gofhir/fhirjson/pkg/sanitize"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string           `help:"YAML file with default settings." short:"c" type:"path"`
	LogLevel string           `help:"Log level: debug, info, warn, error or none." name:"log-level"`
	Version  kong.VersionFlag `help:"Show version information." short:"v"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Convert ConvertCmd `cmd:"" help:"Read FHIR JSON files and print them again."`
	Check   CheckCmd   `cmd:"" help:"Print an OperationOutcome for each file."`
}

// errFindings makes the process exit with status 1 without another message.
var errFindings = errors.New("errors were reported")

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fhirjson"),
		kong.Description("Read FHIR R4 JSON into typed records and print it back."),
		kong.UsageOnError(),
		kong.Vars{
			"version":    "fhirjson " + fhirjson.Version + " (FHIR " + fhirjson.FHIRVersion + ")",
			"sanitizers": strings.Join(sanitize.Names(), ", "),
		},
	)

	err := ctx.Run(&cli.Globals)
	if errors.Is(err, errFindings) {
		os.Exit(1)
	}
	ctx.FatalIfErrorf(err)
}
