package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"content_draft_generator/export"
	"content_draft_generator/generator"
)

// inputFlags maps CLI flag names to pipeline field names.
var inputFlags = []struct {
	flag, field, usage string
}{
	{"content-type", generator.FieldContentType, "content type, e.g. \"Blog Post\""},
	{"brand", generator.FieldBrand, "brand name"},
	{"brand-description", generator.FieldBrandDescription, "what the brand does"},
	{"topic", generator.FieldTopic, "topic of the piece"},
	{"writing-style", generator.FieldWritingStyle, "writing style"},
	{"target-audience", generator.FieldTargetAudience, "who the piece is for"},
	{"instructions", generator.FieldAdditionalInstructions, "additional instructions"},
	{"industry", generator.FieldIndustry, "industry (brand_strategy)"},
	{"competitors", generator.FieldCompetitors, "main competitors (brand_strategy)"},
	{"goals", generator.FieldGoals, "business goals (brand_strategy)"},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a pipeline once and optionally revise the result interactively",
	Example: `  draftgen generate --content-type "Blog Post" --brand Dasho --brand-description "team scheduling" \
    --topic "async standups" --writing-style friendly --target-audience "engineering managers" --instructions "" -i`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.String("pipeline", generator.ArticlePipeline, "pipeline to run")
	for _, in := range inputFlags {
		f.String(in.flag, "", in.usage)
	}
	f.StringToString("input", nil, "extra field=value inputs")
	f.Bool("stream", false, "print model output as it arrives")
	f.BoolP("interactive", "i", false, "read feedback from stdin after the run")
	f.StringP("out", "o", "", "write the result to a .md or .html file")
	f.Bool("plain", false, "print raw markdown instead of terminal rendering")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := loadRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	f := cmd.Flags()
	pipeline, _ := f.GetString("pipeline")
	stream, _ := f.GetBool("stream")
	interactive, _ := f.GetBool("interactive")
	outPath, _ := f.GetString("out")
	plain, _ := f.GetBool("plain")

	// Only flags that were given count as inputs; an explicit empty value is kept.
	inputs, _ := f.GetStringToString("input")
	if inputs == nil {
		inputs = map[string]string{}
	}
	for _, in := range inputFlags {
		if f.Changed(in.flag) {
			inputs[in.field], _ = f.GetString(in.flag)
		}
	}
	if ct, ok := inputs[generator.FieldContentType]; ok && !generator.IsContentType(ct) {
		rt.log.Warn("unrecognized content type", "content_type", ct)
	}

	sess := generator.NewSession(uuid.NewString(), pipeline, inputs)
	opts := rt.cfg.CompletionOptions()
	opts.Stream = opts.Stream || stream
	sess.Options = &opts

	stderr := cmd.ErrOrStderr()
	var runOpts []generator.RunOption
	if opts.Stream {
		runOpts = append(runOpts, generator.WithCallHooks(generator.Hooks{
			OnStageStart: func(_ context.Context, ev generator.StageEvent) {
				fmt.Fprintf(stderr, "\n== %s\n", ev.Stage)
			},
		}), generator.WithProgress(func(_ string, chunk string) {
			fmt.Fprint(stderr, chunk)
		}))
	}

	res, err := rt.agent.Generate(ctx, sess, runOpts...)
	if err != nil {
		return err
	}
	if opts.Stream {
		fmt.Fprintln(stderr)
	}

	render := terminalRenderer(plain)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, render(export.Markdown(generator.Present(res), nil)))

	if interactive {
		if err := feedbackLoop(cmd, rt, sess, cmd.InOrStdin(), render, runOpts); err != nil {
			return err
		}
	}

	if outPath != "" {
		if err := writeExport(outPath, sess); err != nil {
			return err
		}
		rt.log.Info("result written", "path", outPath)
	}
	return nil
}

// feedbackLoop revises the stored run once per line until an empty line or EOF.
func feedbackLoop(cmd *cobra.Command, rt *runtime, sess *generator.Session, in io.Reader, render func(string) string, runOpts []generator.RunOption) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Feedback (empty line to finish)> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}
		rec, err := rt.agent.Revise(cmd.Context(), sess, text, runOpts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, render(rec.Output))
	}
}

func terminalRenderer(plain bool) func(string) string {
	if plain {
		return func(md string) string { return md }
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return func(md string) string { return md }
	}
	return func(md string) string {
		s, err := r.Render(md)
		if err != nil {
			return md
		}
		return s
	}
}

func writeExport(path string, sess *generator.Session) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".html", ".htm", ".md", ".markdown", "":
	default:
		return fmt.Errorf("unsupported output extension %q, use .md or .html", filepath.Ext(path))
	}

	p := generator.Present(sess.Result)
	doc := export.Markdown(p, sess.Thread(false))
	if ext == ".html" || ext == ".htm" {
		body, err := export.HTML(doc)
		if err != nil {
			return err
		}
		doc = export.Document(p.Title, body)
	}
	return os.WriteFile(path, []byte(doc), 0o644)
}
