// gqrx bookmarks
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const bookmarkHeader = "# Frequency ;"

type BookmarkEntry struct {
	Frequency   int64
	Description string
	Mode        string
	Bandwidth   int64
	Tags        []string
}

var ErrNoBookmarksInRange = errors.New("no bookmarks inside the scan range")

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

func readBookmarkFile(bookmarkFile string) (bookmarks []BookmarkEntry, err error) {
	path, err := expandHome(bookmarkFile)
	if err != nil {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()
	return parseBookmarks(file)
}

// parseBookmarks reads the rows following the "# Frequency ;" header of a
// gqrx bookmarks file. Rows that cannot be parsed are logged and skipped.
func parseBookmarks(r io.Reader) (bookmarks []BookmarkEntry, err error) {
	br := bufio.NewReader(r)
	for {
		var line string
		line, err = br.ReadString('\n')
		if strings.HasPrefix(line, bookmarkHeader) {
			err = nil
			break
		}
		if err == io.EOF {
			// no header, no bookmarks
			err = nil
			return
		}
		if err != nil {
			return
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = ';'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	for {
		var record []string
		record, err = reader.Read()
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Println("skipping bookmark row:", err)
				continue
			}
			return
		}
		bookmark, rowErr := parseBookmarkRow(record)
		if rowErr != nil {
			line, _ := reader.FieldPos(0)
			log.Printf("skipping bookmark row at line %d: %v", line, rowErr)
			continue
		}
		bookmarks = append(bookmarks, bookmark)
	}
	return
}

func parseBookmarkRow(record []string) (bookmark BookmarkEntry, err error) {
	if len(record) < 2 {
		err = fmt.Errorf("invalid bookmark record: %v", record)
		return
	}
	bookmark.Frequency, err = strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return
	}
	if bookmark.Frequency <= 0 {
		err = fmt.Errorf("invalid bookmark frequency: %d", bookmark.Frequency)
		return
	}
	bookmark.Description = strings.TrimSpace(record[1])
	if len(record) > 2 {
		bookmark.Mode = strings.TrimSpace(record[2])
	}
	if len(record) > 3 {
		bandwidth := strings.TrimSpace(record[3])
		if bandwidth != "" {
			bookmark.Bandwidth, err = strconv.ParseInt(bandwidth, 10, 64)
			if err != nil {
				return
			}
		}
	}
	if len(record) > 4 {
		for _, tag := range strings.Split(record[4], ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				bookmark.Tags = append(bookmark.Tags, tag)
			}
		}
	}
	return
}

// bookmarkLabel returns the description of the bookmark closest to freq
// within the memory tolerance.
func bookmarkLabel(bookmarks []BookmarkEntry, freq int64) (label string, ok bool) {
	bestDelta := MemoryTolerance
	for _, bookmark := range bookmarks {
		delta := bookmark.Frequency - freq
		if delta < 0 {
			delta = -delta
		}
		if delta <= bestDelta {
			bestDelta = delta
			label = bookmark.Description
			ok = true
		}
	}
	return
}

// ScanBookmarks cycles through the bookmarks strictly inside the band and
// stays on each one as long as it is active.
func (e *ScanEngine) ScanBookmarks(ctx context.Context) error {
	var inRange []BookmarkEntry
	for _, bookmark := range e.bookmarks {
		if bookmark.Frequency > e.config.FreqMin && bookmark.Frequency < e.config.FreqMax {
			inRange = append(inRange, bookmark)
		}
	}
	if len(inRange) == 0 {
		return ErrNoBookmarksInRange
	}

	for {
		for _, bookmark := range inRange {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.watchBookmark(ctx, bookmark); err != nil {
				var transportErr *TransportError
				if !errors.As(err, &transportErr) {
					return err
				}
				e.metrics.transportErrors.WithLabelValues(transportErr.Op).Inc()
				log.Println("scan error:", err)
			}
		}
	}
}

func (e *ScanEngine) watchBookmark(ctx context.Context, bookmark BookmarkEntry) error {
	if err := e.session.SetFrequency(bookmark.Frequency); err != nil {
		return err
	}
	squelch, err := e.session.SquelchLevel()
	if err != nil {
		return err
	}
	e.sleep(waitBookmark)
	level, err := e.session.SignalLevel(LevelSamples)
	if err != nil {
		return err
	}
	if level < squelch {
		return nil
	}

	e.report(Detection{
		Frequency: bookmark.Frequency,
		Level:     level,
		Squelch:   squelch,
		Label:     bookmark.Description,
		Time:      e.now(),
	})
	for level > squelch {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.sleep(waitBookmarkActive)
		if squelch, err = e.session.SquelchLevel(); err != nil {
			return err
		}
		if level, err = e.session.SignalLevel(LevelSamples); err != nil {
			return err
		}
	}
	log.Println("scanning...")
	return nil
}
