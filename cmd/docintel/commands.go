package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/agent"
	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/agent/redaction"
	"github.com/feichai0017/document-intelligence/internal/app"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/service/document"
	"github.com/feichai0017/document-intelligence/internal/utils/validator"
	"github.com/feichai0017/document-intelligence/pkg/storage"
)

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readText takes --text, then the first argument as a file, then stdin.
func readText(c *cli.Context) (string, error) {
	if c.IsSet("text") {
		return c.String("text"), nil
	}
	if c.Args().Len() > 0 {
		data, err := os.ReadFile(c.Args().First())
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func pipelineConfig() (*config.PipelineConfig, error) {
	pc, err := config.GetPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	return pc, nil
}

type extractOutput struct {
	File      string `json:"file"`
	Kind      string `json:"document_kind"`
	Method    string `json:"method"`
	Extractor string `json:"extractor,omitempty"`
	Pages     int    `json:"pages"`
	Text      string `json:"text"`
	Warning   string `json:"warning,omitempty"`
}

func extractCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("extract takes exactly one FILE")
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	log := getLogger(c)
	check := validator.NewDocumentValidator(log, nil).Validate(path, data)
	if err := check.Err(); err != nil {
		return err
	}

	pc, err := pipelineConfig()
	if err != nil {
		return err
	}
	p, err := agent.NewPipeline(c.Context, pc, config.GetModelConfig(), nil, log)
	if err != nil {
		return err
	}
	defer p.Close()

	res := p.Extractor.Extract(c.Context, bytes.NewReader(data), int64(len(data)), check.FileInfo.MediaKind)
	out := extractOutput{
		File:      path,
		Kind:      string(res.Kind),
		Method:    string(res.Method),
		Extractor: res.Extractor,
		Pages:     res.Pages,
		Text:      res.Text,
	}
	if res.Err != nil {
		out.Warning = res.Err.Error()
	}
	return writeJSON(c, out)
}

type redactOutput struct {
	Text          string          `json:"redacted_text"`
	Entities      []models.Entity `json:"entities"`
	Counts        map[string]int  `json:"pii_summary"`
	EntitiesFound int             `json:"entities_found"`
	Sensitive     bool            `json:"is_sensitive"`
}

func redactCommand(c *cli.Context) error {
	text, err := readText(c)
	if err != nil {
		return err
	}
	pc, err := pipelineConfig()
	if err != nil {
		return err
	}

	engine := redaction.NewEngine(redaction.NewDefaultRecognizer(), getLogger(c),
		redaction.WithPlaceholders(pc.Placeholders),
		redaction.WithDefaultPlaceholder(pc.DefaultPlaceholder),
		redaction.WithSensitiveThreshold(pc.SensitiveThreshold),
	)
	res := engine.Redact(c.Context, text)
	if res.Degraded {
		return fmt.Errorf("redaction failed: %w", res.Cause)
	}
	entities := res.Entities
	if entities == nil {
		entities = []models.Entity{}
	}
	return writeJSON(c, redactOutput{
		Text:          res.Text,
		Entities:      entities,
		Counts:        res.Counts,
		EntitiesFound: res.EntitiesFound,
		Sensitive:     res.Sensitive,
	})
}

func tagCommand(c *cli.Context) error {
	text, err := readText(c)
	if err != nil {
		return err
	}
	pc, err := pipelineConfig()
	if err != nil {
		return err
	}
	p, err := agent.NewPipeline(c.Context, pc, config.GetModelConfig(), nil, getLogger(c))
	if err != nil {
		return err
	}
	defer p.Close()

	if c.Bool("sections") {
		res, err := p.Classifier.ClassifyBySections(c.Context, text)
		if err != nil {
			return err
		}
		return writeJSON(c, res)
	}
	s, err := p.Classifier.SuggestTags(c.Context, text)
	if err != nil {
		return err
	}
	return writeJSON(c, map[string]any{"tags": s.Tags, "scores": s.Scores})
}

func chunksCommand(c *cli.Context) error {
	text, err := readText(c)
	if err != nil {
		return err
	}
	chunks, err := embedding.SplitChunks(text, c.Int("size"), c.Int("overlap"))
	if err != nil {
		return err
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	return writeJSON(c, chunks)
}

func labelsCommand(c *cli.Context) error {
	pc, err := pipelineConfig()
	if err != nil {
		return err
	}
	for _, l := range pc.Labels {
		fmt.Fprintln(c.App.Writer, l)
	}
	return nil
}

func reapCommand(c *cli.Context) error {
	log := getLogger(c)
	repo, err := app.OpenStore(c.Context, config.GetStoreConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer repo.Close()

	n, err := document.NewReaper(repo, c.Duration("timeout"), 0, log).Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "failed %d stalled documents\n", n)
	return nil
}

func cleanupCommand(c *cli.Context) error {
	sc := config.GetServerConfig()
	files, err := storage.NewStorage(c.Context, storage.StorageType(sc.StorageBackend), getLogger(c))
	if err != nil {
		return err
	}
	threshold := time.Now().UTC().Add(-c.Duration("retention"))
	if err := files.CleanupBefore(c.Context, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "removed files older than %s\n", threshold.Format(time.RFC3339))
	return nil
}
