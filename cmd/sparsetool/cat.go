package main

import (
	"io"
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
)

var (
	cat_command = app.Command(
		"cat", "Copy a logical range of a sparse file to stdout.")

	cat_command_offset = cat_command.Flag(
		"offset", "The logical offset to start at",
	).Default("0").Int64()

	cat_command_length = cat_command.Flag(
		"length", "The number of bytes to copy, by default up to the logical end",
	).Default("-1").Int64()
)

func doCat() {
	f := openSparseFile()
	defer f.Close()

	length := *cat_command_length
	if length < 0 {
		length = f.Stats().LogicalEnd - *cat_command_offset
	}
	if length <= 0 {
		return
	}

	_, err := io.Copy(os.Stdout, io.NewSectionReader(f, *cat_command_offset, length))
	kingpin.FatalIfError(err, "Can not read sparse file")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case cat_command.FullCommand():
			doCat()
		default:
			return false
		}
		return true
	})
}
