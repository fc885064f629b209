package main

import (
	"io"
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
)

var (
	put_command = app.Command(
		"put", "Write a local file into a sparse file.")

	put_command_file_arg = put_command.Arg(
		"file", "The local file to write",
	).Required().String()

	put_command_offset = put_command.Flag(
		"offset", "The logical offset to write at",
	).Default("0").Int64()

	put_command_chunk_size = put_command.Flag(
		"chunk_size", "The size of individual writes",
	).Default("1048576").Int()
)

func doPut() {
	in, err := os.Open(*put_command_file_arg)
	kingpin.FatalIfError(err, "Can not open input file")
	defer in.Close()

	f := openSparseFile()
	defer f.Close()

	if *put_command_chunk_size <= 0 {
		kingpin.Fatalf("Invalid chunk size %d", *put_command_chunk_size)
	}

	buf := make([]byte, *put_command_chunk_size)
	offset := *put_command_offset
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			_, werr := f.WriteAt(buf[:n], offset)
			kingpin.FatalIfError(werr, "Can not write sparse file")
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		kingpin.FatalIfError(err, "Can not read input file")
	}

	logrus.WithFields(logrus.Fields{
		"offset": *put_command_offset,
		"length": offset - *put_command_offset,
	}).Info("sparsetool: file written")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case put_command.FullCommand():
			doPut()
		default:
			return false
		}
		return true
	})
}
