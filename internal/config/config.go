// Package config is the parameter store for the ONT-VC pipeline. It
// loads the pipeline.yml parameter file into an immutable typed Config,
// validating the document against an embedded CUE schema before any
// task is constructed.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Required configuration keys.
const (
	KeyAlignerOptions  = "hisat2_options"
	KeyReferencePrefix = "reference_genome_prefix"
	KeyAnnotationPath  = "reference_genome_annotations"
	KeyPaired          = "paired"
)

// Optional configuration keys.
const (
	KeyData    = "data"
	KeyThreads = "threads"
)

// DefaultThreads is the per-tool thread count used when the parameter
// file does not set one.
const DefaultThreads = 4

// Config is the immutable value object driving pipeline construction.
// Created once by Load; never mutated afterwards.
type Config struct {
	// AlignerOptions is an opaque token string passed through to the
	// aligner invocation. The engine never parses its internal syntax.
	AlignerOptions string

	// ReferencePrefix is the path prefix of the reference genome index.
	ReferencePrefix string

	// AnnotationPath is the compressed genome annotation file.
	AnnotationPath string

	// Paired selects paired-end (two read streams per sample) versus
	// single-end alignment.
	Paired bool

	// DataDir is the directory holding the raw read files.
	DataDir string

	// Threads is the per-tool thread count.
	Threads int
}

// Load reads and validates the parameter file at path.
//
// Load fails with a *ConfigError naming the offending key when a
// required key is absent, a value has the wrong type, paired is not a
// recognized boolean representation, or a referenced path does not
// exist. Unrecognized keys are ignored.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("parse %s: %v", path, err), Err: err}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// Required keys are checked up front so the error names the key;
	// the CUE schema then enforces types and value domains.
	for _, key := range []string{KeyAlignerOptions, KeyReferencePrefix, KeyAnnotationPath, KeyPaired} {
		if _, ok := doc[key]; !ok {
			return nil, &ConfigError{Key: key, Message: "required key missing"}
		}
	}

	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	cfg := &Config{
		AlignerOptions:  doc[KeyAlignerOptions].(string),
		ReferencePrefix: doc[KeyReferencePrefix].(string),
		AnnotationPath:  doc[KeyAnnotationPath].(string),
		Paired:          asInt(doc[KeyPaired]) == 1,
		DataDir:         dataDir(doc[KeyData]),
		Threads:         DefaultThreads,
	}
	if v, ok := doc[KeyThreads]; ok {
		cfg.Threads = asInt(v)
	}

	if err := cfg.checkPaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkPaths verifies that every filesystem location the configuration
// references exists before pipeline construction proceeds.
func (c *Config) checkPaths() error {
	if info, err := os.Stat(c.AnnotationPath); err != nil || info.IsDir() {
		return &ConfigError{
			Key:     KeyAnnotationPath,
			Message: fmt.Sprintf("annotation file %s does not exist or is not readable", c.AnnotationPath),
			Err:     err,
		}
	}
	if info, err := os.Stat(c.DataDir); err != nil || !info.IsDir() {
		return &ConfigError{
			Key:     KeyData,
			Message: fmt.Sprintf("data directory %s does not exist", c.DataDir),
			Err:     err,
		}
	}
	refDir := filepath.Dir(c.ReferencePrefix)
	if info, err := os.Stat(refDir); err != nil || !info.IsDir() {
		return &ConfigError{
			Key:     KeyReferencePrefix,
			Message: fmt.Sprintf("reference directory %s does not exist", refDir),
			Err:     err,
		}
	}
	return nil
}

// dataDir resolves the "data" key the way the original pipeline did:
// 0 or absent means the working directory, 1 means the conventional
// data.dir subdirectory, any string is an explicit path.
func dataDir(v any) string {
	switch val := v.(type) {
	case nil:
		return "."
	case string:
		if val == "" {
			return "."
		}
		return val
	default:
		if asInt(v) == 1 {
			return "data.dir"
		}
		return "."
	}
}

// asInt normalizes the integer representations yaml.v3 produces.
// Schema validation has already rejected non-integer values.
func asInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	}
	return 0
}
