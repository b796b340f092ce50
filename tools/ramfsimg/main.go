// Command ramfsimg builds the fixture RAM filesystem image cmd/kernel
// loads at boot.
//
// The original implementation built a bootable disk image from a
// bootloader, a kernel binary and a skeleton directory
// (biscuit/src/mkfs/mkfs.go's addfiles/copydata walking a host directory
// tree into the simulated filesystem it constructs). This command plays
// the same role for a RAM-only filesystem with no on-disk block layout:
// it walks a host directory tree and packs every regular file it finds
// into a single golang.org/x/tools/txtar archive, via fsimage.Pack.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fsimage"
)

func usage(me string) {
	fmt.Printf("%s <skel dir> <output image>\n\nPack <skel dir> into a RAM filesystem image at <output image>\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	skelDir := os.Args[1]
	outImage := os.Args[2]

	files, err := collect(skelDir)
	if err != nil {
		fmt.Printf("error walking %q: %v\n", skelDir, err)
		os.Exit(1)
	}

	if err := os.WriteFile(outImage, fsimage.Pack(files), 0644); err != nil {
		fmt.Printf("failed to write %q: %v\n", outImage, err)
		os.Exit(1)
	}
}

// collect walks skelDir and returns every regular file's contents keyed
// by its path relative to skelDir, the same relative-path convention
// mkfs.go's addfiles uses for the simulated filesystem it builds.
func collect(skelDir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(skelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(path, skelDir)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
