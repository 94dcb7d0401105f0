// Command h5batch inspects many HDF5 files concurrently and reports a
// one-line summary per file. Each file gets its own *hdf5.File — the
// package is not safe for concurrent use on a single handle, so this is
// exactly the kind of fan-out it's meant for.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	hdf5 "github.com/scigolib/goh5"
)

var (
	app         = kingpin.New("h5batch", "Inspect many HDF5 files concurrently.")
	files       = app.Arg("files", "Paths to HDF5 files.").Required().Strings()
	concurrency = app.Flag("concurrency", "Maximum files inspected at once.").Short('c').Default("8").Int()
)

type result struct {
	path    string
	groups  int
	dataset int
	errs    int
	err     error
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logrus.New()

	results := make([]result, len(*files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	for i, path := range *files {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r := inspectOne(path, log)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("batch inspect")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("%s: FAILED (%v)\n", r.path, r.err)
			continue
		}
		fmt.Printf("%s: %d groups, %d datasets, %d unreadable\n", r.path, r.groups, r.dataset, r.errs)
	}
}

func inspectOne(path string, log *logrus.Logger) result {
	f, err := hdf5.Open(path)
	if err != nil {
		return result{path: path, err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).WithField("file", path).Warn("close file")
		}
	}()

	report, err := hdf5.Inspect(f)
	if err != nil {
		return result{path: path, err: err}
	}

	r := result{path: path}
	for _, item := range report.Items {
		switch {
		case item.Err != nil:
			r.errs++
		case item.IsGroup:
			r.groups++
		default:
			r.dataset++
		}
	}
	return r
}
