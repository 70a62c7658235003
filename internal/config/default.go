package config

import (
	"fmt"
	"os"
)

// defaultYAML is the scaffold written by the config subcommand. Users
// edit it before running the pipeline.
const defaultYAML = `# ONT-VC pipeline parameters.
#
# Edit the values below, then run:
#
#   ontvc run pipeline.yml

# Options passed verbatim to the aligner.
hisat2_options: ""

# Path prefix of the reference genome index. The pipeline appends the
# tool-specific index suffixes.
reference_genome_prefix: /ref/hg38

# Compressed genome annotation file.
reference_genome_annotations: /ref/hg38.gtf.gz

# Sequencing mode: 1 = paired-end, 0 = single-end.
paired: 1

# Location of the input read files: 0 = working directory,
# 1 = data.dir, or an explicit path.
data: 0

# Per-tool thread count.
threads: 4
`

// WriteDefault scaffolds a commented pipeline.yml at path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if fileExists(path) {
		return &ConfigError{Message: fmt.Sprintf("%s already exists, refusing to overwrite", path)}
	}
	if err := os.WriteFile(path, []byte(defaultYAML), 0o644); err != nil {
		return &ConfigError{Message: fmt.Sprintf("write %s: %v", path, err), Err: err}
	}
	return nil
}
