package pipeline

import "os"

// Fingerprint identifies the observed state of an artifact on disk.
// Size plus nanosecond modification time is cheap to compute and
// sufficient to detect the replace-or-truncate patterns external tools
// use; content hashing multi-gigabyte BAM files on every resume would
// dominate pipeline start-up.
type Fingerprint struct {
	Size      int64 `json:"size"`
	ModTimeNS int64 `json:"mtime_ns"`
}

// Artifact is a path-addressed file produced by one task and consumed
// by others. Producer is a back-reference to the producing task ID, or
// empty for externally supplied inputs (raw reads, reference FASTA,
// annotation file).
type Artifact struct {
	Path     string
	Producer string
}

// FingerprintFile stats path and returns its fingerprint. ok is false
// when the file does not exist or cannot be stat'd; the zero
// Fingerprint never matches a real file.
func FingerprintFile(path string) (Fingerprint, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Fingerprint{}, false
	}
	return Fingerprint{
		Size:      info.Size(),
		ModTimeNS: info.ModTime().UnixNano(),
	}, true
}

// FingerprintAll fingerprints every path. ok is false if any path is
// missing; the returned map still contains entries for the paths that
// were found.
func FingerprintAll(paths []string) (map[string]Fingerprint, bool) {
	fps := make(map[string]Fingerprint, len(paths))
	ok := true
	for _, p := range paths {
		fp, found := FingerprintFile(p)
		if !found {
			ok = false
			continue
		}
		fps[p] = fp
	}
	return fps, ok
}
