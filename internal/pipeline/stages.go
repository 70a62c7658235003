package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Acribbs/ONT-VC/internal/config"
)

// Stage names of the fixed workflow.
const (
	StageIndexReference = "index-reference"
	StageAlign          = "align"
	StageSortIndex      = "sort-index"
	StageCallVariants   = "call-variants"
	StageFilter         = "filter"
	StageAnnotate       = "annotate"
	StageCoverage       = "coverage"
	StageBamCoverage    = "bam-coverage"
	StageSVCall         = "sv-call"
	StageSVFilter       = "sv-filter"
	StageSVMerge        = "sv-merge"
)

// StageTemplate declares one workflow stage as data: a command template
// plus input/output artifact path patterns. Patterns may contain the
// placeholders {prefix}, {annotation}, {data}, {options}, {threads} and,
// for per-sample stages, {sample}. The builder instantiates per-sample
// templates once per discovered sample.
//
// Edges between the resulting tasks are derived solely from artifact
// path equality, never from the order templates appear in.
type StageTemplate struct {
	Name      string
	PerSample bool
	Command   string
	Inputs    []string
	Outputs   []string

	// MergeSamples marks a single-instance stage that aggregates over
	// every sample: input patterns containing {sample} are instantiated
	// once per discovered sample, and the command placeholder {inputs}
	// receives the space-joined input list.
	MergeSamples bool

	// External lists input patterns supplied from outside the pipeline
	// (raw reads, reference FASTA, annotation file). These are the only
	// consumed artifacts allowed to have no producing task.
	External []string

	SkipIfOutputsExist bool
}

// hisat2 index suffixes appended to the reference prefix.
var indexSuffixes = []string{
	".1.ht2", ".2.ht2", ".3.ht2", ".4.ht2",
	".5.ht2", ".6.ht2", ".7.ht2", ".8.ht2",
}

// Stages returns the workflow templates for the given configuration.
// The paired flag selects the shape of the alignment stage: two read
// streams merged per sample versus one.
func Stages(cfg *config.Config) []StageTemplate {
	indexOutputs := make([]string, len(indexSuffixes))
	for i, s := range indexSuffixes {
		indexOutputs[i] = "{prefix}" + s
	}

	align := StageTemplate{
		Name:      StageAlign,
		PerSample: true,
		Command: "hisat2 {options} -p {threads} -x {prefix}" +
			" -U {data}/{sample}.fastq.gz -S mapped.dir/{sample}.sam",
		Inputs:   append([]string{"{data}/{sample}.fastq.gz"}, indexOutputs...),
		External: []string{"{data}/{sample}.fastq.gz"},
		Outputs:  []string{"mapped.dir/{sample}.sam"},
	}
	if cfg.Paired {
		align.Command = "hisat2 {options} -p {threads} -x {prefix}" +
			" -1 {data}/{sample}.fastq.1.gz -2 {data}/{sample}.fastq.2.gz" +
			" -S mapped.dir/{sample}.sam"
		align.Inputs = append([]string{
			"{data}/{sample}.fastq.1.gz",
			"{data}/{sample}.fastq.2.gz",
		}, indexOutputs...)
		align.External = []string{
			"{data}/{sample}.fastq.1.gz",
			"{data}/{sample}.fastq.2.gz",
		}
	}

	return []StageTemplate{
		{
			Name:               StageIndexReference,
			Command:            "hisat2-build -p {threads} {prefix}.fa {prefix}",
			Inputs:             []string{"{prefix}.fa"},
			External:           []string{"{prefix}.fa"},
			Outputs:            indexOutputs,
			SkipIfOutputsExist: true,
		},
		align,
		{
			Name:      StageSortIndex,
			PerSample: true,
			Command: "samtools sort mapped.dir/{sample}.sam -o mapped.dir/{sample}_sorted.bam &&" +
				" samtools index mapped.dir/{sample}_sorted.bam",
			Inputs: []string{"mapped.dir/{sample}.sam"},
			Outputs: []string{
				"mapped.dir/{sample}_sorted.bam",
				"mapped.dir/{sample}_sorted.bam.bai",
			},
		},
		{
			Name:      StageCallVariants,
			PerSample: true,
			Command: "bcftools mpileup -f {prefix}.fa mapped.dir/{sample}_sorted.bam |" +
				" bcftools call -mv -O z -o variants.dir/{sample}.vcf.gz",
			Inputs: []string{
				"mapped.dir/{sample}_sorted.bam",
				"mapped.dir/{sample}_sorted.bam.bai",
				"{prefix}.fa",
			},
			External: []string{"{prefix}.fa"},
			Outputs:  []string{"variants.dir/{sample}.vcf.gz"},
		},
		{
			Name:      StageFilter,
			PerSample: true,
			Command: "bcftools filter -O z -o variants.dir/{sample}_filtered.vcf.gz" +
				` -i "QUAL>20 & DP>20" variants.dir/{sample}.vcf.gz`,
			Inputs:  []string{"variants.dir/{sample}.vcf.gz"},
			Outputs: []string{"variants.dir/{sample}_filtered.vcf.gz"},
		},
		{
			Name:      StageAnnotate,
			PerSample: true,
			Command: "bcftools csq -f {prefix}.fa -g {annotation}" +
				" variants.dir/{sample}_filtered.vcf.gz -O z -o variants.dir/{sample}_annotated.vcf.gz",
			Inputs: []string{
				"variants.dir/{sample}_filtered.vcf.gz",
				"{annotation}",
			},
			External: []string{"{annotation}"},
			Outputs:  []string{"variants.dir/{sample}_annotated.vcf.gz"},
		},
		{
			Name:      StageCoverage,
			PerSample: true,
			Command:   "mosdepth coverage.dir/{sample} mapped.dir/{sample}_sorted.bam",
			Inputs: []string{
				"mapped.dir/{sample}_sorted.bam",
				"mapped.dir/{sample}_sorted.bam.bai",
			},
			Outputs: []string{"coverage.dir/{sample}.mosdepth.summary.txt"},
		},
		{
			Name:      StageBamCoverage,
			PerSample: true,
			Command:   "bamCoverage -b mapped.dir/{sample}_sorted.bam -o mapped.dir/{sample}.bw",
			Inputs: []string{
				"mapped.dir/{sample}_sorted.bam",
				"mapped.dir/{sample}_sorted.bam.bai",
			},
			Outputs: []string{"mapped.dir/{sample}.bw"},
		},
		{
			Name:      StageSVCall,
			PerSample: true,
			Command: "sniffles -i mapped.dir/{sample}_sorted.bam --vcf sv.dir/{sample}.vcf" +
				" --snf sv.dir/{sample}.snf --reference {prefix}.fa",
			Inputs: []string{
				"mapped.dir/{sample}_sorted.bam",
				"mapped.dir/{sample}_sorted.bam.bai",
				"{prefix}.fa",
			},
			External: []string{"{prefix}.fa"},
			Outputs: []string{
				"sv.dir/{sample}.vcf",
				"sv.dir/{sample}.snf",
			},
		},
		{
			Name:      StageSVFilter,
			PerSample: true,
			Command: "bcftools filter -O z -o sv.dir/{sample}_filtered.vcf.gz" +
				` -i "QUAL>30" sv.dir/{sample}.vcf`,
			Inputs:  []string{"sv.dir/{sample}.vcf"},
			Outputs: []string{"sv.dir/{sample}_filtered.vcf.gz"},
		},
		{
			Name:         StageSVMerge,
			MergeSamples: true,
			Command:      "sniffles --input {inputs} --vcf sv.dir/merged.vcf.gz",
			Inputs:       []string{"sv.dir/{sample}.snf"},
			Outputs:      []string{"sv.dir/merged.vcf.gz"},
		},
	}
}

// expand substitutes configuration and sample placeholders into a
// template pattern.
func expand(pattern string, cfg *config.Config, sample string) string {
	r := strings.NewReplacer(
		"{prefix}", cfg.ReferencePrefix,
		"{annotation}", cfg.AnnotationPath,
		"{data}", cfg.DataDir,
		"{options}", cfg.AlignerOptions,
		"{threads}", strconv.Itoa(cfg.Threads),
		"{sample}", sample,
	)
	return r.Replace(pattern)
}

// taskID derives the stable task identity for a stage instance.
func taskID(stage, sample string) string {
	if sample == "" {
		return stage
	}
	return fmt.Sprintf("%s/%s", stage, sample)
}
