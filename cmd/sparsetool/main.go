package main

import (
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("sparsetool",
		"A tool for inspecting and editing sparse files.")

	verbose_flag = app.Flag(
		"verbose", "Show verbose information").Short('v').Bool()

	data_flag = app.Flag(
		"data", "The data store of the sparse file",
	).Default("sparse.data").String()

	journal_flag = app.Flag(
		"journal", "The journal of the sparse file",
	).Default("sparse.journal").String()

	single_flag = app.Flag(
		"single", "Keep the journal within the data store",
	).Bool()

	command_handlers []CommandHandler
)

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	app.PreAction(func(*kingpin.ParseContext) error {
		if *verbose_flag {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	})
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
