/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metric

// LogLine is one raw line read from a log source, plus whatever structure
// a filter has teased out of it. Value is kept verbatim.
type LogLine struct {
	Path   string
	Value  string
	Time   int64
	Tags   map[string]string
	Fields map[string]string
}

// NewLogLine wraps a raw line read from path. Time is left at zero; the
// source stamps it on ingest.
func NewLogLine(path, value string) *LogLine {
	return &LogLine{
		Path:  path,
		Value: value,
	}
}

// AddTags overlays tags onto the line without clobbering existing keys.
func (l *LogLine) AddTags(tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	if l.Tags == nil {
		l.Tags = make(map[string]string, len(tags))
	}
	for k, v := range tags {
		if _, ok := l.Tags[k]; !ok {
			l.Tags[k] = v
		}
	}
}
