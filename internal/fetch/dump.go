package fetch

import (
	"os"
	"path/filepath"
)

// DirDump writes the transcript of every request into its own file under a
// directory, for inspecting what a page actually looked like during a run.
type DirDump struct {
	directory string
}

func NewDirDump(dir string) (DirDump, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return DirDump{}, err
	}
	return DirDump{directory: dir}, nil
}

func (d DirDump) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(d.directory, id+".txt"), []byte(contents), 0600)
}
