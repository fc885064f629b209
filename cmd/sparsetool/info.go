package main

var (
	info_command = app.Command(
		"info", "Show statistics of a sparse file.")
)

func doInfo() {
	f := openSparseFile()
	defer f.Close()

	Dump(f.Stats())
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case info_command.FullCommand():
			doInfo()
		default:
			return false
		}
		return true
	})
}
