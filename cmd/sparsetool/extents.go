package main

import (
	"math"
	"os"
	"strconv"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/bsm/sparse"
)

var (
	extents_command = app.Command(
		"extents", "List the extents stored in a snapshot.")

	extents_command_file_arg = extents_command.Arg(
		"file", "The snapshot file to inspect",
	).Required().String()

	extents_command_offset = extents_command.Flag(
		"offset", "Skip extents ending at or before this logical offset",
	).Default(strconv.FormatInt(math.MinInt64, 10)).Int64()
)

func doExtents() {
	fd, err := os.Open(*extents_command_file_arg)
	kingpin.FatalIfError(err, "Can not open snapshot")
	defer fd.Close()

	st, err := fd.Stat()
	kingpin.FatalIfError(err, "Can not open snapshot")

	r, err := sparse.NewReader(fd, st.Size())
	kingpin.FatalIfError(err, "Can not open snapshot")

	iter, err := r.Seek(*extents_command_offset)
	kingpin.FatalIfError(err, "Can not read snapshot")
	defer iter.Release()

	extents := []sparse.Extent{}
	for iter.Next() {
		extents = append(extents, iter.Extent())
	}
	kingpin.FatalIfError(iter.Err(), "Can not read snapshot")

	Dump(extents)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case extents_command.FullCommand():
			doExtents()
		default:
			return false
		}
		return true
	})
}
