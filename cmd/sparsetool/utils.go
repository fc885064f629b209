package main

import (
	"encoding/json"
	"fmt"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/bsm/sparse"
	"github.com/sirupsen/logrus"
)

func Dump(v interface{}) {
	serialized, _ := json.MarshalIndent(v, " ", " ")
	fmt.Println(string(serialized))
}

// openSparseFile opens the sparse file named by the global flags.
func openSparseFile() *sparse.File {
	data, err := sparse.OpenFileAppender(*data_flag)
	kingpin.FatalIfError(err, "Can not open data store")

	options := &sparse.FileOptions{
		Logger: logrus.StandardLogger(),
	}
	if *single_flag {
		f, err := sparse.OpenSingleFile(data, options)
		kingpin.FatalIfError(err, "Can not open sparse file")
		return f
	}

	journal, err := sparse.OpenFileAppender(*journal_flag)
	kingpin.FatalIfError(err, "Can not open journal")

	f, err := sparse.OpenFile(data, journal, options)
	kingpin.FatalIfError(err, "Can not open sparse file")
	return f
}
