package instance

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DirTimeLayout is the timestamp suffix of instance directory names.
const DirTimeLayout = "2006-01-02_15-04-05"

const (
	instanceExt  = ".xml"
	savepointExt = ".xml.save"
	indexExt     = ".index"
	lockExt      = ".lock"
)

// FormBase returns the form file's base name without extension, NFC
// normalized so the same form yields one name regardless of how the file
// system reported it.
func FormBase(formPath string) string {
	base := filepath.Base(formPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return norm.NFC.String(base)
}

// NewInstancePath returns the instance file path for a new session started at
// now: {instancesDir}/{formBase}_{timestamp}/{formBase}_{timestamp}.xml.
func NewInstancePath(instancesDir, formPath string, now time.Time) string {
	dir := FormBase(formPath) + "_" + now.Format(DirTimeLayout)
	return filepath.Join(instancesDir, dir, dir+instanceExt)
}

// DirName returns the name of the directory holding an instance file.
func DirName(instancePath string) string {
	return filepath.Base(filepath.Dir(instancePath))
}

// SavepointPath returns {cacheDir}/{formBase}_{instanceDirName}.xml.save.
func SavepointPath(cacheDir, formPath, instancePath string) string {
	return filepath.Join(cacheDir, sideName(formPath, instancePath)+savepointExt)
}

// IndexPath returns the last-visited-index file paired with a savepoint.
func IndexPath(cacheDir, formPath, instancePath string) string {
	return filepath.Join(cacheDir, sideName(formPath, instancePath)+indexExt)
}

// LockPath returns the session lock file for an instance.
func LockPath(cacheDir, instancePath string) string {
	return filepath.Join(cacheDir, DirName(instancePath)+lockExt)
}

func sideName(formPath, instancePath string) string {
	return FormBase(formPath) + "_" + DirName(instancePath)
}

// InstanceDirFromSavepoint recovers the instance directory name from a
// savepoint file name produced by SavepointPath for formPath. Only
// directories named by NewInstancePath for the same form are accepted, so a
// form whose base name extends formPath's (household_v2 for household) never
// matches.
func InstanceDirFromSavepoint(formPath, savepointPath string) (string, error) {
	name := filepath.Base(savepointPath)
	base := FormBase(formPath)
	prefix := base + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, savepointExt) {
		return "", fmt.Errorf("savepoint %s does not belong to form %s", name, base)
	}
	dir := strings.TrimSuffix(strings.TrimPrefix(name, prefix), savepointExt)
	stamp, ok := strings.CutPrefix(dir, prefix)
	if !ok {
		return "", fmt.Errorf("savepoint %s does not belong to form %s", name, base)
	}
	if _, err := time.Parse(DirTimeLayout, stamp); err != nil {
		return "", fmt.Errorf("savepoint %s: instance directory %q has no %s timestamp", name, dir, base)
	}
	return dir, nil
}

// InstancePathForDir returns the instance file path inside instancesDir for
// an instance directory name.
func InstancePathForDir(instancesDir, dirName string) string {
	return filepath.Join(instancesDir, dirName, dirName+instanceExt)
}

// SavepointGlob matches every savepoint for formPath in cacheDir.
func SavepointGlob(cacheDir, formPath string) string {
	return filepath.Join(cacheDir, globEscape(FormBase(formPath))+"_*"+savepointExt)
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
