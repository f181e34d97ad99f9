package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"svgass/models"
	"svgass/pipeline"
	"svgass/services"
)

// ErrConversionRejected is returned when the engine reported a failure. Its
// diagnostics have already been printed.
var ErrConversionRejected = errors.New("conversion engine reported a failure")

var convertOpts struct {
	host  string
	input string
	start string
	end   string
	layer int
	style string
	actor string
	pos   bool
	level string
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert one document and print the subtitle lines",
	Long: `Convert pulls the active document from the authoring host (--host) or
reads it from --input ("-" for stdin) and prints the converted lines. When
the engine rejects the document its diagnostics are printed instead and the
command exits non-zero.`,
	RunE: runConvert,
}

func init() {
	defaults := models.DefaultConversionRequest()
	f := convertCmd.Flags()
	f.StringVar(&convertOpts.host, "host", "", "host WebSocket URL (default HOST_URL)")
	f.StringVarP(&convertOpts.input, "input", "i", "", "read the SVG from a file instead of the host")
	f.StringVarP(&convertOpts.start, "start", "s", defaults.StartTime, "start timecode")
	f.StringVarP(&convertOpts.end, "end", "e", defaults.EndTime, "end timecode")
	f.IntVarP(&convertOpts.layer, "layer", "l", defaults.InitialLayer, "initial layer")
	f.StringVarP(&convertOpts.style, "style", "t", defaults.Style, "style name")
	f.StringVarP(&convertOpts.actor, "actor", "a", defaults.Actor, "actor name")
	f.BoolVar(&convertOpts.pos, "pos", defaults.AddPosTag, `insert \pos(0,0) into every override block`)
	f.StringVar(&convertOpts.level, "level", defaults.CompressionLevel.String(), "compression: none, compatibility, small, medium, strong or 0-4")
}

func runConvert(cmd *cobra.Command, args []string) error {
	level, err := models.ParseCompressionLevel(convertOpts.level)
	if err != nil {
		return err
	}
	req := models.ConversionRequest{
		StartTime:        convertOpts.start,
		EndTime:          convertOpts.end,
		InitialLayer:     convertOpts.layer,
		Style:            convertOpts.style,
		Actor:            convertOpts.actor,
		AddPosTag:        convertOpts.pos,
		CompressionLevel: level,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPipeline()
	var result pipeline.Result
	if convertOpts.input != "" {
		document, err := readDocument(convertOpts.input, cmd.InOrStdin())
		if err != nil {
			return err
		}
		result, err = p.RunProgram(ctx, document, req)
		if err != nil {
			return err
		}
	} else {
		result, err = convertFromHost(ctx, p, req)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Output)
	if !result.Success {
		return fmt.Errorf("%w (status %d)", ErrConversionRejected, result.Status)
	}
	return nil
}

func convertFromHost(ctx context.Context, p *pipeline.Pipeline, req models.ConversionRequest) (pipeline.Result, error) {
	host := convertOpts.host
	if host == "" {
		host = cfg.HostURL
	}
	if host == "" {
		return pipeline.Result{}, errors.New("no document source: pass --input or --host (or set HOST_URL)")
	}

	bridge, closeConn, err := services.DialHostBridge(ctx, host)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeConn()

	logger.Info().Str("host", host).Msg("requesting active document")
	return pipeline.NewConverter(bridge, p).Convert(ctx, req)
}

func readDocument(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return services.DecodeUTF8(data), nil
}
