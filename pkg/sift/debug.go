package sift

import (
	"fmt"
	"os"
	"path/filepath"
)

func debugEnabled(savePath string) bool {
	if savePath == "" {
		return false
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return false
	}
	return true
}

// maybeSaveOctave writes every blur and DoG level of a complete octave and
// returns the number of files that could not be written.
func maybeSaveOctave(o *Octave, index int, savePath string) int {
	if !debugEnabled(savePath) {
		return 0
	}
	failed := 0
	for i := 0; i < o.Steps+3; i++ {
		if err := writeGrid(filepath.Join(savePath, fmt.Sprintf("o%02d-l%02d.tif", index, i)), o.Level(i)); err != nil {
			failed++
		}
	}
	for i := 0; i < o.NumDoG(); i++ {
		if err := writeGrid(filepath.Join(savePath, fmt.Sprintf("o%02d-dog%02d.tif", index, i)), o.DoG(i)); err != nil {
			failed++
		}
	}
	return failed
}

// maybeSaveText reports 1 when the file could not be written.
func maybeSaveText(savePath, filename, text string) int {
	if !debugEnabled(savePath) {
		return 0
	}
	if err := os.WriteFile(filepath.Join(savePath, filename), []byte(text), 0644); err != nil {
		return 1
	}
	return 0
}
