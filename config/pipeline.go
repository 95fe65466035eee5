package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLabels is the candidate label set used for tagging.
var DefaultLabels = []string{
	"legal document",
	"financial report",
	"medical record",
	"contract",
	"invoice",
	"receipt",
	"resume",
	"academic paper",
	"technical manual",
	"policy document",
	"news article",
	"research paper",
	"business plan",
	"proposal",
	"certificate",
	"license",
	"identification",
	"insurance document",
	"tax document",
	"employment contract",
}

// DefaultPlaceholders maps recognised entity types to their redaction token.
var DefaultPlaceholders = map[string]string{
	"PERSON":                    "[PERSON]",
	"EMAIL_ADDRESS":             "[EMAIL]",
	"PHONE_NUMBER":              "[PHONE]",
	"CREDIT_CARD":               "[CREDIT_CARD]",
	"IBAN_CODE":                 "[IBAN]",
	"IP_ADDRESS":                "[IP_ADDRESS]",
	"LOCATION":                  "[LOCATION]",
	"DATE_TIME":                 "[DATE]",
	"NRP":                       "[NRP]",
	"MEDICAL_LICENSE":           "[MEDICAL_LICENSE]",
	"US_SSN":                    "[SSN]",
	"US_PASSPORT":               "[PASSPORT]",
	"CRYPTO":                    "[CRYPTO]",
	"US_DRIVER_LICENSE":         "[DRIVER_LICENSE]",
	"UK_NHS":                    "[NHS]",
	"CANADA_SIN":                "[SIN]",
	"AUSTRALIA_TAX_FILE_NUMBER": "[TAX_FILE_NUMBER]",
	"AUSTRALIA_MEDICARE":        "[MEDICARE]",
	"INDIA_PAN":                 "[PAN]",
	"INDIA_AADHAAR":             "[AADHAAR]",
}

// PipelineConfig holds every tunable of the processing and retrieval
// pipeline. It is read from YAML; zero values are filled from defaults.
type PipelineConfig struct {
	Labels       []string          `yaml:"labels"`
	Placeholders map[string]string `yaml:"placeholders"`
	// DefaultPlaceholder, when set, redacts entity types missing from Placeholders.
	DefaultPlaceholder string `yaml:"default_placeholder"`

	SensitiveThreshold int `yaml:"sensitive_threshold"`

	MaxTags             int     `yaml:"max_tags"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ClassifyMaxChars    int     `yaml:"classify_max_chars"`
	SectionSize         int     `yaml:"section_size"`
	SectionedTagging    bool    `yaml:"sectioned_tagging"`

	EmbeddingDimension int `yaml:"embedding_dimension"`
	ChunkSize          int `yaml:"chunk_size"`
	ChunkOverlap       int `yaml:"chunk_overlap"`

	OCRDPI         float64  `yaml:"ocr_dpi"`
	ProbeDPI       float64  `yaml:"probe_dpi"`
	MinDirectChars int      `yaml:"min_direct_chars"`
	MinProbeChars  int      `yaml:"min_probe_chars"`
	OCRLanguages   []string `yaml:"ocr_languages"`
	OCRPageWorkers int      `yaml:"ocr_page_workers"`
	MorphKernel    int      `yaml:"morph_kernel"`

	SearchThreshold float64 `yaml:"search_threshold"`
	SearchLimit     int     `yaml:"search_limit"`
	QATopK          int     `yaml:"qa_top_k"`
	QAPrefixChars   int     `yaml:"qa_prefix_chars"`

	ReaperInterval    time.Duration `yaml:"reaper_interval"`
	ReaperTimeout     time.Duration `yaml:"reaper_timeout"`
	SoftTimeLimit     time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit     time.Duration `yaml:"hard_time_limit"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	QueueCapacity     int           `yaml:"queue_capacity"`

	MaxFileSize int64 `yaml:"max_file_size"`
}

// DefaultPipelineConfig returns the built-in configuration.
func DefaultPipelineConfig() *PipelineConfig {
	placeholders := make(map[string]string, len(DefaultPlaceholders))
	for k, v := range DefaultPlaceholders {
		placeholders[k] = v
	}
	return &PipelineConfig{
		Labels:              append([]string(nil), DefaultLabels...),
		Placeholders:        placeholders,
		SensitiveThreshold:  5,
		MaxTags:             5,
		ConfidenceThreshold: 0.3,
		ClassifyMaxChars:    1000,
		SectionSize:         1000,
		EmbeddingDimension:  384,
		ChunkSize:           512,
		ChunkOverlap:        50,
		OCRDPI:              300,
		ProbeDPI:            150,
		MinDirectChars:      50,
		MinProbeChars:       10,
		OCRLanguages:        []string{"eng"},
		OCRPageWorkers:      4,
		MorphKernel:         1,
		SearchThreshold:     0.7,
		SearchLimit:         10,
		QATopK:              3,
		QAPrefixChars:       1000,
		ReaperInterval:      time.Hour,
		ReaperTimeout:       time.Hour,
		SoftTimeLimit:       25 * time.Minute,
		HardTimeLimit:       30 * time.Minute,
		WorkerConcurrency:   4,
		QueueCapacity:       1024,
		MaxFileSize:         50 << 20,
	}
}

// LoadPipelineConfig reads a YAML file over the defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	return ParsePipelineConfig(data)
}

// ParsePipelineConfig decodes YAML over the defaults and validates the result.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	var file PipelineConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *PipelineConfig) merge(o *PipelineConfig) {
	if len(o.Labels) > 0 {
		c.Labels = o.Labels
	}
	// placeholder entries extend or override the defaults
	for k, v := range o.Placeholders {
		c.Placeholders[k] = v
	}
	if o.DefaultPlaceholder != "" {
		c.DefaultPlaceholder = o.DefaultPlaceholder
	}
	setInt(&c.SensitiveThreshold, o.SensitiveThreshold)
	setInt(&c.MaxTags, o.MaxTags)
	setFloat(&c.ConfidenceThreshold, o.ConfidenceThreshold)
	setInt(&c.ClassifyMaxChars, o.ClassifyMaxChars)
	setInt(&c.SectionSize, o.SectionSize)
	c.SectionedTagging = c.SectionedTagging || o.SectionedTagging
	setInt(&c.EmbeddingDimension, o.EmbeddingDimension)
	setInt(&c.ChunkSize, o.ChunkSize)
	setInt(&c.ChunkOverlap, o.ChunkOverlap)
	setFloat(&c.OCRDPI, o.OCRDPI)
	setFloat(&c.ProbeDPI, o.ProbeDPI)
	setInt(&c.MinDirectChars, o.MinDirectChars)
	setInt(&c.MinProbeChars, o.MinProbeChars)
	if len(o.OCRLanguages) > 0 {
		c.OCRLanguages = o.OCRLanguages
	}
	setInt(&c.OCRPageWorkers, o.OCRPageWorkers)
	setInt(&c.MorphKernel, o.MorphKernel)
	setFloat(&c.SearchThreshold, o.SearchThreshold)
	setInt(&c.SearchLimit, o.SearchLimit)
	setInt(&c.QATopK, o.QATopK)
	setInt(&c.QAPrefixChars, o.QAPrefixChars)
	setDuration(&c.ReaperInterval, o.ReaperInterval)
	setDuration(&c.ReaperTimeout, o.ReaperTimeout)
	setDuration(&c.SoftTimeLimit, o.SoftTimeLimit)
	setDuration(&c.HardTimeLimit, o.HardTimeLimit)
	setInt(&c.WorkerConcurrency, o.WorkerConcurrency)
	setInt(&c.QueueCapacity, o.QueueCapacity)
	if o.MaxFileSize != 0 {
		c.MaxFileSize = o.MaxFileSize
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *PipelineConfig) Validate() error {
	var errs []error
	if len(c.Labels) == 0 {
		errs = append(errs, errors.New("labels must not be empty"))
	}
	if c.SensitiveThreshold < 1 {
		errs = append(errs, errors.New("sensitive_threshold must be at least 1"))
	}
	if c.MaxTags < 1 {
		errs = append(errs, errors.New("max_tags must be at least 1"))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("confidence_threshold must be within [0, 1]"))
	}
	if c.SearchThreshold < -1 || c.SearchThreshold > 1 {
		errs = append(errs, errors.New("search_threshold must be within [-1, 1]"))
	}
	if c.EmbeddingDimension < 1 {
		errs = append(errs, errors.New("embedding_dimension must be positive"))
	}
	if c.ChunkSize < 1 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap (%d) must be in [0, chunk_size=%d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.OCRDPI <= 0 || c.ProbeDPI <= 0 {
		errs = append(errs, errors.New("ocr_dpi and probe_dpi must be positive"))
	}
	if c.SoftTimeLimit > c.HardTimeLimit {
		errs = append(errs, errors.New("soft_time_limit must not exceed hard_time_limit"))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("worker_concurrency must be at least 1"))
	}
	if c.SearchLimit < 1 || c.QATopK < 1 {
		errs = append(errs, errors.New("search_limit and qa_top_k must be at least 1"))
	}
	return errors.Join(errs...)
}

var (
	pipelineOnce   sync.Once
	pipelineConfig *PipelineConfig
	pipelineErr    error
)

// GetPipelineConfig loads the file named by PIPELINE_CONFIG once.
func GetPipelineConfig() (*PipelineConfig, error) {
	pipelineOnce.Do(func() {
		loadEnv()
		pipelineConfig, pipelineErr = LoadPipelineConfig(getEnv("PIPELINE_CONFIG", ""))
	})
	return pipelineConfig, pipelineErr
}
