package core

import (
	"sync"

	"piobroker/tinycompress"
)

// Dictionary is the JSON description of the console the host downloads with
// identify: message IDs, constants and enumerations.
type Dictionary struct {
	mu        sync.Mutex
	registry  *CommandRegistry
	version   string
	builds    string
	constants map[string]string
	enums     map[string][]string
	cached    []byte
	zipped    []byte
}

func NewDictionary(registry *CommandRegistry, version, build string) *Dictionary {
	return &Dictionary{
		registry:  registry,
		version:   version,
		builds:    build,
		constants: make(map[string]string),
		enums:     make(map[string][]string),
	}
}

// AddConstant publishes a value under config. Supported kinds are string,
// int, uint8, uint32 and bool.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = constantString(value)
	d.cached, d.zipped = nil, nil
}

// AddEnumeration publishes names whose index is their wire value. Empty
// names are skipped.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enums[name] = append([]string(nil), values...)
	d.cached, d.zipped = nil, nil
}

// Bytes returns the encoded dictionary, building it on first use. Register
// every message before the host first asks for it.
func (d *Dictionary) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.encode()
	}
	return d.cached
}

// Compressed is the zlib form of Bytes that identify serves.
func (d *Dictionary) Compressed() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.encode()
	}
	if d.zipped == nil {
		d.zipped = tinycompress.Zlib(d.cached)
	}
	return d.zipped
}

// Chunk returns up to count bytes of the compressed dictionary at offset,
// empty past the end.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Compressed()
	if offset >= uint32(len(data)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	return data[offset:end]
}

func (d *Dictionary) encode() []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":"`...)
	out = append(out, d.version...)
	out = append(out, `","build_versions":"`...)
	out = append(out, d.builds...)
	out = append(out, `","config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '"')
		out = append(out, name...)
		out = append(out, `":"`...)
		out = append(out, d.constants[name]...)
		out = append(out, '"')
	}

	var commands, responses []byte
	for _, c := range d.registry.Commands() {
		entry := make([]byte, 0, 48)
		entry = append(entry, '"')
		entry = append(entry, c.Signature()...)
		entry = append(entry, `":`...)
		entry = append(entry, utoa(uint32(c.ID))...)
		if c.Handler != nil {
			commands = appendMember(commands, entry)
		} else {
			responses = appendMember(responses, entry)
		}
	}
	out = append(out, `},"commands":{`...)
	out = append(out, commands...)
	out = append(out, `},"responses":{`...)
	out = append(out, responses...)
	out = append(out, '}')

	if len(d.enums) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enums) {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, '"')
			out = append(out, name...)
			out = append(out, `":{`...)
			first := true
			for idx, v := range d.enums[name] {
				if v == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				first = false
				out = append(out, '"')
				out = append(out, v...)
				out = append(out, `":`...)
				out = append(out, itoa(idx)...)
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

func appendMember(list, entry []byte) []byte {
	if len(list) > 0 {
		list = append(list, ',')
	}
	return append(list, entry...)
}

// sortedKeys avoids pulling sort into the firmware image.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
