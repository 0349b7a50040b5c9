// Command skipconv is the format-conversion collaborator spec.md §6
// describes: "a separate collaborator that opens a source handle and a
// destination handle and copies via foreach + store". It also accepts a
// JWCC job file (github.com/tailscale/hujson, grounded on
// calvinalkan-agent-task's config loader) for converting several stores
// in one invocation.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/arkdb/skipstore"
)

// job is one source/destination conversion, either built from CLI flags
// or decoded from a JWCC job file entry.
type job struct {
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Legacy   bool   `json:"legacy,omitempty"`
	Compress bool   `json:"compress,omitempty"`
}

type jobFile struct {
	Jobs []job `json:"jobs"`
}

func main() {
	src := pflag.String("src", "", "source store path")
	dst := pflag.String("dst", "", "destination store path (created fresh)")
	legacy := pflag.Bool("legacy", false, "write the destination in the legacy v1 format")
	current := pflag.Bool("current", false, "write the destination in the current v2 format (default)")
	compress := pflag.Bool("compress", false, "permit compressed records on write")
	jobsPath := pflag.String("jobs", "", "JWCC job file listing multiple conversions")
	pflag.Parse()

	var jobs []job
	if *jobsPath != "" {
		loaded, err := loadJobFile(*jobsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "skipconv:", err)
			os.Exit(1)
		}
		jobs = loaded
	} else {
		if *src == "" || *dst == "" {
			fmt.Fprintln(os.Stderr, "usage: skipconv --src <file> --dst <file> [--legacy|--current] [--compress]")
			os.Exit(2)
		}
		if *legacy && *current {
			fmt.Fprintln(os.Stderr, "skipconv: --legacy and --current are mutually exclusive")
			os.Exit(2)
		}
		jobs = []job{{Src: *src, Dst: *dst, Legacy: *legacy, Compress: *compress}}
	}

	for _, j := range jobs {
		if err := convert(j); err != nil {
			fmt.Fprintf(os.Stderr, "skipconv: %s -> %s: %v\n", j.Src, j.Dst, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s: ok\n", j.Src, j.Dst)
	}
}

func loadJobFile(path string) ([]job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing job file: %w", err)
	}
	var jf jobFile
	if err := json.Unmarshal(standardized, &jf); err != nil {
		return nil, fmt.Errorf("decoding job file: %w", err)
	}
	return jf.Jobs, nil
}

// convert opens src with a normal read-write handle (its own on-disk
// format, legacy or current, is detected automatically; opening may run
// recovery on it) and dst freshly in the requested format, then
// copies every live key via foreach + create, all inside one destination
// transaction.
func convert(j job) error {
	srcHandle, err := skipstore.Open(j.Src, skipstore.OrderedBytes)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer srcHandle.Close()

	dstFlags := skipstore.Create | skipstore.OrderedBytes
	if j.Legacy {
		dstFlags |= skipstore.Legacy
	}
	if j.Compress {
		dstFlags |= skipstore.Compress
	}
	dstHandle, err := skipstore.Open(j.Dst, dstFlags)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer dstHandle.Close()

	txn, err := skipstore.Begin(dstHandle)
	if err != nil {
		return fmt.Errorf("starting destination transaction: %w", err)
	}

	copyErr := skipstore.Foreach(srcHandle, nil, nil, func(key, value []byte) (bool, error) {
		return true, skipstore.Create(dstHandle, key, value, txn)
	})
	if copyErr != nil {
		if abortErr := skipstore.Abort(dstHandle, txn); abortErr != nil {
			return fmt.Errorf("copying records: %w (abort also failed: %v)", copyErr, abortErr)
		}
		return fmt.Errorf("copying records: %w", copyErr)
	}

	if err := skipstore.Commit(dstHandle, txn); err != nil {
		return fmt.Errorf("committing destination: %w", err)
	}
	return nil
}
