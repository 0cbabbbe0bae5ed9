package main

import (
	"os"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
)

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP API."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
	Signup  SignupCmd  `cmd:"" help:"Create an account and print its token."`
	Add     AddCmd     `cmd:"" help:"Record one entry for a user."`
	History HistoryCmd `cmd:"" help:"Print a user's daily history as JSON."`
	Chart   ChartCmd   `cmd:"" help:"Write a user's chart as an HTML page."`
	Day     DayCmd     `cmd:"" help:"Print the entries recorded on one day."`
}

// newParser builds the command line parser. Flags with an env tag also
// resolve from envFiles that exist, later files winning; flags on the command
// line and variables already in the environment take precedence.
func newParser(cli *CLI, envFiles ...string) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("recoverytrack"),
		kong.Description("Post-operative vitals tracking service."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, envFiles...),
	)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, ".env")
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
