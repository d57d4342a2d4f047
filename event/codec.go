package event

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Encode emits the SSE wire form of an event:
//
//	id: <uuid>\nevent: <name>\ndata: <json>\n\n
//
// Content events carrying a prompt additionally emit a type field so that
// session replays are distinguishable on the wire.
func Encode(e *Event) ([]byte, error) {
	data, err := json.Marshal(e.Data())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 64)
	if e.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(e.ID)
		buf.WriteByte('\n')
	}
	buf.WriteString("event: ")
	buf.WriteString(string(e.Name))
	buf.WriteByte('\n')
	if e.Type == TypePrompt {
		buf.WriteString("type: ")
		buf.WriteString(string(e.Type))
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Decoder is a tolerant incremental SSE parser. Feed it arbitrary byte
// chunks; it emits events as their terminating blank line arrives. A
// trailing unterminated event is emitted by Flush.
type Decoder struct {
	logger  *logrus.Entry
	partial []byte
	current rawEvent
}

type rawEvent struct {
	id    string
	name  string
	typ   string
	retry int
	data  [][]byte
	seen  bool
}

// NewDecoder creates a decoder; logger may be nil.
func NewDecoder(logger *logrus.Entry) *Decoder {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Decoder{logger: logger}
}

// Feed consumes a chunk and returns the events completed by it. Events whose
// JSON payload fails to parse are logged and skipped; decoding never halts.
func (d *Decoder) Feed(chunk []byte) []*Event {
	d.partial = append(d.partial, chunk...)
	var out []*Event
	for {
		idx := bytes.IndexByte(d.partial, '\n')
		if idx < 0 {
			return out
		}
		line := d.partial[:idx]
		d.partial = d.partial[idx+1:]
		if ev := d.consumeLine(line); ev != nil {
			out = append(out, ev)
		}
	}
}

// Flush emits the trailing event when the input ended without a blank line.
func (d *Decoder) Flush() []*Event {
	var out []*Event
	if len(d.partial) > 0 {
		line := d.partial
		d.partial = nil
		if ev := d.consumeLine(line); ev != nil {
			out = append(out, ev)
		}
	}
	if d.current.seen {
		if ev := d.finish(); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func (d *Decoder) consumeLine(line []byte) *Event {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		if !d.current.seen {
			return nil
		}
		return d.finish()
	}
	if line[0] == ':' { // comment
		return nil
	}
	name, value := splitField(line)
	d.current.seen = true
	switch name {
	case "id":
		d.current.id = value
	case "event":
		d.current.name = value
	case "type":
		d.current.typ = value
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil {
			d.current.retry = ms
		}
	case "data":
		d.current.data = append(d.current.data, []byte(value))
	default:
		// Unknown fields are ignored.
	}
	return nil
}

// splitField splits "name: value"; a line without a colon is a field name
// with an empty value.
func splitField(line []byte) (string, string) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), ""
	}
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:idx]), string(value)
}

func (d *Decoder) finish() *Event {
	raw := d.current
	d.current = rawEvent{}
	name := Name(raw.name)
	if name == "" {
		name = NameContent
	}
	ev := &Event{ID: raw.id, Name: name, Type: Type(raw.typ), Retry: raw.retry}
	data := bytes.Join(raw.data, []byte("\n"))
	if err := ev.decodeData(data); err != nil {
		d.logger.WithError(err).Warn("skipping undecodable event")
		return nil
	}
	return ev
}

// Decode parses a complete buffer of SSE frames.
func Decode(data []byte, logger *logrus.Entry) []*Event {
	d := NewDecoder(logger)
	out := d.Feed(data)
	return append(out, d.Flush()...)
}
