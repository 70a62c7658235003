package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Read file suffixes produced by guppy basecalling.
const (
	suffixSingle = ".fastq.gz"
	suffixMate1  = ".fastq.1.gz"
	suffixMate2  = ".fastq.2.gz"
)

// Sample is one sequencing sample discovered in the data directory.
// Reads holds one path in single-end mode and the two mate files in
// paired-end mode, in mate order.
type Sample struct {
	Name  string
	Reads []string
}

// DiscoverSamples globs the configured data directory for read files.
//
// Paired-end mode matches *.fastq.1.gz and requires the .fastq.2.gz
// mate to be present; single-end mode matches *.fastq.gz, excluding
// mate-numbered files. Sample names are the NFC-normalized basename
// stems so task identities are byte-stable regardless of how the
// filesystem encoded the name.
func DiscoverSamples(cfg *Config) ([]Sample, error) {
	if cfg.Paired {
		return discoverPaired(cfg.DataDir)
	}
	return discoverSingle(cfg.DataDir)
}

func discoverPaired(dir string) ([]Sample, error) {
	mates, err := filepath.Glob(filepath.Join(dir, "*"+suffixMate1))
	if err != nil {
		return nil, &ConfigError{Key: KeyData, Message: fmt.Sprintf("glob read files: %v", err), Err: err}
	}

	samples := make([]Sample, 0, len(mates))
	for _, mate1 := range mates {
		mate2 := strings.TrimSuffix(mate1, suffixMate1) + suffixMate2
		if !fileExists(mate2) {
			return nil, &ConfigError{
				Key:     KeyPaired,
				Message: fmt.Sprintf("paired mode: mate file %s missing for %s", mate2, mate1),
			}
		}
		samples = append(samples, Sample{
			Name:  sampleName(mate1, suffixMate1),
			Reads: []string{mate1, mate2},
		})
	}
	return sortSamples(samples), nil
}

func discoverSingle(dir string) ([]Sample, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+suffixSingle))
	if err != nil {
		return nil, &ConfigError{Key: KeyData, Message: fmt.Sprintf("glob read files: %v", err), Err: err}
	}

	samples := make([]Sample, 0, len(files))
	for _, f := range files {
		// *.fastq.1.gz and *.fastq.2.gz also match *.gz globs; they
		// belong to paired mode only.
		if strings.HasSuffix(f, suffixMate1) || strings.HasSuffix(f, suffixMate2) {
			continue
		}
		samples = append(samples, Sample{
			Name:  sampleName(f, suffixSingle),
			Reads: []string{f},
		})
	}
	return sortSamples(samples), nil
}

// sampleName derives the sample identity from a read file path.
func sampleName(path, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(path), suffix)
	return norm.NFC.String(base)
}

func sortSamples(samples []Sample) []Sample {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
