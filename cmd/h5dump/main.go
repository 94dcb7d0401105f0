// Command h5dump prints the structure of an HDF5 file: one line per group
// and dataset (its kind, its path, and any error met reading it) and, with
// --attributes, attribute values. Dataset shapes and types are not printed.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	hdf5 "github.com/scigolib/goh5"
)

var (
	app      = kingpin.New("h5dump", "Print the structure of an HDF5 file.")
	path     = app.Arg("file", "Path to an HDF5 file.").Required().String()
	showAttr = app.Flag("attributes", "Print attribute values alongside each group and dataset.").Short('a').Bool()
	verbose  = app.Flag("verbose", "Also log each unreadable object at debug level.").Short('v').Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	f, err := hdf5.Open(*path)
	if err != nil {
		log.WithError(err).Fatal("open file")
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Warn("close file")
		}
	}()

	report, err := hdf5.Inspect(f)
	if err != nil {
		log.WithError(err).Fatal("inspect file")
	}

	for _, item := range report.Items {
		kind := "dataset"
		if item.IsGroup {
			kind = "group"
		}
		line := fmt.Sprintf("%-8s %s", kind, item.Path)
		if item.Err != nil {
			line += fmt.Sprintf("  [%v]", item.Err)
		}
		fmt.Println(line)

		if item.Err != nil && *verbose {
			log.WithFields(logrus.Fields{"path": item.Path}).Debug(item.Err)
		}

		if *showAttr && item.Err == nil {
			printAttributes(f, item)
		}
	}
}

func printAttributes(f *hdf5.File, item hdf5.InspectItem) {
	var attrs []*hdf5.Attribute
	if item.IsGroup {
		g, err := f.Group(item.Path)
		if err != nil {
			return
		}
		attrs, _ = g.Attributes()
	} else {
		d, err := f.Dataset(item.Path)
		if err != nil {
			return
		}
		attrs = d.Attributes()
	}
	for _, a := range attrs {
		v, err := a.Value(f)
		if err != nil {
			v = fmt.Sprintf("<unreadable: %v>", err)
		}
		fmt.Printf("%s@%s = %v\n", strings.TrimPrefix(item.Path, "/"), a.Name(), v)
	}
}
