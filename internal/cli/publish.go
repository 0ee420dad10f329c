package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/drblury/botflow/ingress"
	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
)

const maxUpdateLine = 4 << 20

// PublishResult reports how many updates were published.
type PublishResult struct {
	Ingress   string `json:"ingress"`
	Topic     string `json:"topic"`
	Published int    `json:"published"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [file]",
		Short: "Publish Telegram updates to the configured ingress",
		Long: `Read Telegram updates as a JSON array or as one JSON object per line from
file (or stdin when file is "-" or omitted) and publish them to the updates
topic of the configured ingress. Useful for replaying captured traffic into
Kafka, RabbitMQ, NATS, JetStream or an ingress file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runPublish(cmd, rootOpts, path)
		},
	}
}

func runPublish(cmd *cobra.Command, opts *RootOptions, path string) (err error) {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if caps := ingress.GetCapabilities(cfg.Ingress); !caps.Publishes {
		return out.Failure(ExitCommandError, "publish", fmt.Errorf("ingress %q cannot publish updates", cfg.Ingress))
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return out.Failure(ExitCommandError, "open updates", err)
		}
		defer f.Close()
		r = f
	}
	updates, err := readUpdates(r)
	if err != nil {
		return out.Failure(ExitCommandError, "read updates", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd, opts)
	in, err := ingress.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return out.Failure(ExitCommandError, "open ingress", err)
	}
	defer func() {
		err = errors.Join(err, in.Close())
	}()

	for i, u := range updates {
		if err := ingress.Publish(ctx, in.Publisher, in.Topic, u); err != nil {
			return out.Failure(ExitCommandError, fmt.Sprintf("publish update %d", i+1), err)
		}
	}

	result := PublishResult{Ingress: in.Name, Topic: in.Topic, Published: len(updates)}
	return out.Success(result, fmt.Sprintf("published %d update(s) to %s topic %q", len(updates), in.Name, in.Topic))
}

// readUpdates accepts a JSON array of updates or JSON lines.
func readUpdates(r io.Reader) ([]telego.Update, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws [][]byte
	if doc := gjson.ParseBytes(trimmed); doc.IsArray() {
		for _, item := range doc.Array() {
			raws = append(raws, []byte(item.Raw))
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), maxUpdateLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			raws = append(raws, bytes.Clone(line))
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	updates := make([]telego.Update, 0, len(raws))
	for i, raw := range raws {
		var u telego.Update
		if err := jsoncodec.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("update %d: %w", i+1, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}
