package main

import (
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/bsm/sparse"
)

var (
	snapshot_command = app.Command(
		"snapshot", "Write a snapshot of the extent index of a sparse file.")

	snapshot_command_file_arg = snapshot_command.Arg(
		"file", "The snapshot file to create",
	).Required().String()

	snapshot_command_block_size = snapshot_command.Flag(
		"block_size", "The snapshot block size",
	).Default("4096").Int()

	snapshot_command_no_compression = snapshot_command.Flag(
		"no_compression", "Disable snappy compression",
	).Bool()
)

func doSnapshot() {
	f := openSparseFile()
	defer f.Close()

	out, err := os.Create(*snapshot_command_file_arg)
	kingpin.FatalIfError(err, "Can not create snapshot file")
	defer out.Close()

	o := &sparse.WriterOptions{BlockSize: *snapshot_command_block_size}
	if *snapshot_command_no_compression {
		o.Compression = sparse.NoCompression
	}

	err = f.WriteSnapshot(out, o)
	kingpin.FatalIfError(err, "Can not write snapshot")

	err = out.Close()
	kingpin.FatalIfError(err, "Can not write snapshot")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case snapshot_command.FullCommand():
			doSnapshot()
		default:
			return false
		}
		return true
	})
}
