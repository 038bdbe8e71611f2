package os

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// CheckCreateDir makes the private directory with all its parents.
func CheckCreateDir(path string) error { return os.MkdirAll(path, 0700) }

// ExpectTermination returns a channel closed on the first SIGINT or SIGTERM.
func ExpectTermination() <-chan struct{} {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-signals
		signal.Stop(signals)
		close(done)
	}()
	return done
}

// WriteFileAtomic writes data into a temp file in the same
// directory and renames it over name, so readers never see
// a half-written file.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, perm)
	}
	if err == nil {
		err = os.Rename(tmp, name)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}
