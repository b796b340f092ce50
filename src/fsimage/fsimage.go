// Package fsimage encodes and decodes the fixture RAM filesystem image
// tools/ramfsimg builds and cmd/kernel loads at boot, replacing the
// bespoke on-disk layout spec.md 1 explicitly places out of scope with a
// flat name-to-bytes archive. Grounded on the teacher's mkfs/mkfs.go,
// which walks a host directory tree and copies each file into the
// simulated filesystem it builds (addfiles/copydata); fsimage plays the
// same "host tree in, filesystem contents out" role, but the serialized
// form in between is a golang.org/x/tools/txtar archive -- a natural
// choice for a human-diffable fixture file with no disk-block structure
// to get right.
package fsimage

import "sort"

import "golang.org/x/tools/txtar"

// Pack encodes files (name -> contents) as a txtar archive, with entries
// sorted by name so the output is deterministic across runs.
func Pack(files map[string][]byte) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &txtar.Archive{}
	for _, name := range names {
		a.Files = append(a.Files, txtar.File{Name: name, Data: files[name]})
	}
	return txtar.Format(a)
}

// Unpack parses a txtar archive produced by Pack (or hand-written in the
// same format) back into a name -> contents map.
func Unpack(data []byte) map[string][]byte {
	a := txtar.Parse(data)
	files := make(map[string][]byte, len(a.Files))
	for _, f := range a.Files {
		files[f.Name] = f.Data
	}
	return files
}
