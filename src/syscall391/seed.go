package syscall391

import "defs"

// SeedFile installs name into the RAM filesystem with the given initial
// contents. Called once per entry in the fixture image tools/ramfsimg
// produces, or directly by cmd/kernel before the first process starts.
// Overwrites an existing file of the same name rather than failing
// EEXIST, since reloading a fixture is expected to replace whatever
// placeholder a name already held, not fail against it.
func SeedFile(name string, data []byte) defs.Err_t {
	idx, ok := rootfs.lookup(name)
	if !ok {
		var err defs.Err_t
		idx, err = rootfs.create(name)
		if err != 0 {
			return err
		}
	}
	rf := rootfs.file(idx)
	rf.mu.Lock()
	rf.data = append([]byte{}, data...)
	rf.mu.Unlock()
	return 0
}
