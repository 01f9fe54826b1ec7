//go:build !(linux || darwin || freebsd)

package main

import "os"

func mapBlob(path string) ([]byte, func(), error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return b, func() {}, nil
}
