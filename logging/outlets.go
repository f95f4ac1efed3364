package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/go-logfmt/logfmt"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// LogfmtOutlet writes entries as logfmt key=value lines.
type LogfmtOutlet struct {
	w io.Writer
}

func NewLogfmtOutlet(w io.Writer) *LogfmtOutlet {
	return &LogfmtOutlet{w: w}
}

func (o *LogfmtOutlet) WriteEntry(e Entry) error {
	enc := logfmt.NewEncoder(o.w)
	if err := enc.EncodeKeyval("time", e.Time.Format(time.RFC3339)); err != nil {
		return errors.Wrap(err, "encode time")
	}
	if err := enc.EncodeKeyval("level", e.Level.String()); err != nil {
		return errors.Wrap(err, "encode level")
	}
	if err := enc.EncodeKeyval("msg", e.Message); err != nil {
		return errors.Wrap(err, "encode msg")
	}
	for _, k := range sortedKeys(e.Fields) {
		if err := enc.EncodeKeyval(k, e.Fields[k]); err != nil {
			return errors.Wrapf(err, "encode field %q", k)
		}
	}
	return enc.EndRecord()
}

// HumanOutlet writes a compact single-line format, colorized by level
// when enabled.
type HumanOutlet struct {
	w        io.Writer
	colorize bool
}

func NewHumanOutlet(w io.Writer, colorize bool) *HumanOutlet {
	return &HumanOutlet{w: w, colorize: colorize}
}

func (o *HumanOutlet) WriteEntry(e Entry) error {
	line := appendHuman(nil, e, o.colorize)
	line = append(line, '\n')
	_, err := o.w.Write(line)
	return err
}

var levelColors = map[Level]*color.Color{
	Debug: color.New(color.FgHiBlack),
	Info:  color.New(color.FgGreen),
	Warn:  color.New(color.FgYellow),
	Error: color.New(color.FgRed),
}

func appendHuman(buf []byte, e Entry, colorize bool) []byte {
	level := fmt.Sprintf("[%s]", e.Level)
	if colorize {
		if c, ok := levelColors[e.Level]; ok {
			level = c.Sprint(level)
		}
	}
	buf = append(buf, e.Time.Format("2006-01-02 15:04:05.000")...)
	buf = append(buf, ' ')
	buf = append(buf, level...)
	buf = append(buf, ": "...)
	buf = append(buf, e.Message...)
	for _, k := range sortedKeys(e.Fields) {
		buf = append(buf, fmt.Sprintf(" %s=%q", k, fmt.Sprint(e.Fields[k]))...)
	}
	return buf
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stderrIsTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}
