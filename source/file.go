/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/positions"
	"github.com/etsangsplk/cernan/router"
	"github.com/etsangsplk/cernan/stats"
)

const (
	fileGlobInterval = 3 * time.Second
	filePollInterval = 500 * time.Millisecond
	fileBatchSize    = 64
)

// File tails every file matching a glob pattern, one LogLine per line.
// Offsets persist across restarts; rotation is detected when a path's
// identity changes or the file shrinks below the read offset.
type File struct {
	name    string
	pattern string
	tags    map[string]string
	rt      *router.Router
	pos     *positions.Store
}

func NewFile(cfg *config.FileConfig, tags map[string]string, rt *router.Router, pos *positions.Store) *File {
	return &File{
		name:    fmt.Sprintf("sources.files:%s", cfg.Path),
		pattern: cfg.Path,
		tags:    tags,
		rt:      rt,
		pos:     pos,
	}
}

func (f *File) Name() string { return f.name }

func (f *File) Run(ctx context.Context) error {
	if _, err := filepath.Glob(f.pattern); err != nil {
		return errors.WithMessagef(err, "bad file pattern %q", f.pattern)
	}

	var wg sync.WaitGroup
	tailing := map[string]bool{}
	ticker := time.NewTicker(fileGlobInterval)
	defer ticker.Stop()

	for {
		matches, _ := filepath.Glob(f.pattern)
		for _, path := range matches {
			if tailing[path] {
				continue
			}
			tailing[path] = true
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				f.tail(ctx, path)
			}(path)
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

func fileIdentity(fi os.FileInfo) (dev, ino uint64) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev), uint64(st.Ino)
	}
	return 0, 0
}

func (f *File) tail(ctx context.Context, path string) {
	var (
		file       *os.File
		reader     *bufio.Reader
		dev, ino   uint64
		offset     int64 // bytes consumed from the open file
		lineOffset int64 // offset of the last complete line; the durable mark
		pending    string
	)

	defer func() {
		if file != nil {
			file.Close()
			f.pos.Put(path, positions.Mark{Offset: uint64(lineOffset), Dev: dev, Inode: ino})
		}
	}()

	sleep := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(filePollInterval):
			return true
		}
	}

	open := func() bool {
		var err error
		file, err = os.Open(path)
		if err != nil {
			file = nil
			return false
		}
		fi, err := file.Stat()
		if err != nil {
			file.Close()
			file = nil
			return false
		}
		dev, ino = fileIdentity(fi)
		offset, lineOffset, pending = 0, 0, ""

		// Resume only when the stored mark still describes this file.
		if mark, ok, err := f.pos.Get(path); err == nil && ok &&
			mark.Dev == dev && mark.Inode == ino && int64(mark.Offset) <= fi.Size() {
			if _, err := file.Seek(int64(mark.Offset), io.SeekStart); err == nil {
				offset, lineOffset = int64(mark.Offset), int64(mark.Offset)
			}
		}
		reader = bufio.NewReader(file)
		logger.Info().Str("path", path).Int64("offset", offset).Msg("Tailing file.")
		return true
	}

	reopen := func() {
		if file != nil {
			file.Close()
			file = nil
		}
		f.pos.Put(path, positions.Mark{})
	}

	for file == nil {
		if open() {
			break
		}
		if !sleep() {
			return
		}
	}

	var lines []*metric.LogLine
	publish := func() {
		if len(lines) == 0 {
			return
		}
		now := time.Now().Unix()
		for _, l := range lines {
			l.Time = now
			l.AddTags(f.tags)
		}
		stats.Add("cernan.file.lines", uint64(len(lines)))
		f.rt.Publish(f.name, metric.LogEvent(lines...))
		lines = nil
	}

	for {
		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))

		switch err {
		case nil:
			line := pending + chunk[:len(chunk)-1]
			pending = ""
			lineOffset = offset
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, metric.NewLogLine(path, line))
			if len(lines) >= fileBatchSize {
				publish()
			}

		case io.EOF:
			pending += chunk
			publish()
			f.pos.Put(path, positions.Mark{Offset: uint64(lineOffset), Dev: dev, Inode: ino})

			if !sleep() {
				return
			}
			fi, statErr := os.Stat(path)
			switch {
			case statErr != nil:
				// Removed out from under us; wait for recreation.
				reopen()
				for file == nil {
					if !sleep() {
						return
					}
					open()
				}
			default:
				nowDev, nowIno := fileIdentity(fi)
				if nowDev != dev || nowIno != ino || fi.Size() < offset {
					logger.Info().Str("path", path).Msg("File rotated. Reopening.")
					reopen()
					for file == nil {
						if !sleep() {
							return
						}
						open()
					}
				}
			}

		default:
			logger.Warn().Err(err).Str("path", path).Msg("Read failed. Reopening.")
			publish()
			reopen()
			for file == nil {
				if !sleep() {
					return
				}
				open()
			}
		}
	}
}
